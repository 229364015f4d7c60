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

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newThumbprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbprint",
		Short: "Print the RFC 7638 thumbprints of the keys in a key set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := loadKeySet(cmd.Context(), viper.GetString("jwks"))
			if err != nil {
				return err
			}
			for _, k := range keys.Keys {
				key, err := describeKey(k)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s/%s\t%s\n", key.Thumbprint, key.Kty, key.Crv, key.Kid)
			}
			return nil
		},
	}
	cmd.Flags().String("jwks", "", "JWKS file path or http(s) URL")
	addKeySourceFlags(cmd)
	return cmd
}
