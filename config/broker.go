/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads the broker's and the agent's declarative
// key=value configuration files.
package config

import (
	"github.com/spf13/viper"
)

// Broker is the vault daemon's configuration.
type Broker struct {
	// VaultPort is the mTLS-required listening port for established
	// agents.
	VaultPort int `mapstructure:"vault_port"`

	// LobbyPort is the plaintext enrollment port.
	LobbyPort int `mapstructure:"lobby_port"`

	// CertPath, KeyPath and CAPath point at the broker's TLS material.
	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
	CAPath   string `mapstructure:"ca_path"`

	// CAKeyPath points at the CA private key, needed to sign
	// enrollment CSRs.
	CAKeyPath string `mapstructure:"ca_key_path"`

	// DBPath is the persistent store location.
	DBPath string `mapstructure:"db_path"`

	// PolicyPath is the access policy file ([role:*] + [map]).
	PolicyPath string `mapstructure:"policy_path"`

	// LogLevel and LogFormat configure structured logging.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// MetricsAddr, when non-empty, serves Prometheus metrics over
	// plain HTTP at that address.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func brokerDefaults(v *viper.Viper) {
	v.SetDefault("vault_port", 35565)
	v.SetDefault("lobby_port", 35566)
	v.SetDefault("cert_path", "certs/server.crt")
	v.SetDefault("key_path", "certs/server.key")
	v.SetDefault("ca_path", "certs/ca.crt")
	v.SetDefault("ca_key_path", "certs/ca.key")
	v.SetDefault("db_path", "broker_audit.db")
	v.SetDefault("policy_path", "policy.conf")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_addr", "")
}

// LoadBroker reads path as an ini-style key=value file and applies the
// documented defaults for anything left unset. An empty path yields
// pure defaults.
func LoadBroker(path string) (Broker, error) {
	v := viper.New()
	v.SetConfigType("ini")
	brokerDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Broker{}, err
		}
	}

	var cfg Broker
	if err := unmarshalFlat(v, &cfg); err != nil {
		return Broker{}, err
	}
	return cfg, nil
}
