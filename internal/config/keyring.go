/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import "github.com/zalando/go-keyring"

const (
	keyringService = "ReportDesigner"
	keyringToken   = "backend_token"
)

// TokenStore abstracts the OS keychain.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// Token returns the stored backend token, or "" when none is stored.
func Token() string {
	tok, err := tokenStore.Get(keyringService, keyringToken)
	if err != nil {
		return ""
	}
	return tok
}

func SetToken(token string) error { return tokenStore.Set(keyringService, keyringToken, token) }

// ClearToken removes the token; a missing entry is not an error.
func ClearToken() error {
	if err := tokenStore.Delete(keyringService, keyringToken); err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}
