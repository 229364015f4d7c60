//
// Copyright 2025 The CertNode Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	// SHA-256("abc")
	want := "ungWv48Bz-pBQUDeXa4iI7ADYaOWF3qctBD_YfIAFa0"
	assert.Equal(t, want, SumB64U([]byte("abc")))
	assert.Len(t, Sum(nil), Size)
}

func TestDecodeB64U(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      []byte
		expectErr bool
	}{
		{
			name: "unpadded",
			in:   "aGk",
			want: []byte("hi"),
		},
		{
			name: "padded input tolerated",
			in:   "aGk=",
			want: []byte("hi"),
		},
		{
			name: "url alphabet",
			in:   "-_8",
			want: []byte{0xfb, 0xff},
		},
		{
			name:      "standard alphabet rejected",
			in:        "+/8",
			expectErr: true,
		},
		{
			name:      "non-canonical trailing bits",
			in:        "aGl",
			expectErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := DecodeB64U(test.in)
			if test.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]byte{1, 2}, []byte{1, 2}))
	assert.False(t, Equal([]byte{1, 2}, []byte{1, 3}))
	assert.False(t, Equal([]byte{1, 2}, []byte{1, 2, 3}))
}
