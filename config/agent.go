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

package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Agent is the agent binary's configuration.
type Agent struct {
	BrokerIP   string `mapstructure:"broker_ip"`
	BrokerPort int    `mapstructure:"broker_port"`

	// LobbyPort is the broker's plaintext enrollment port, used only
	// by the enroll command.
	LobbyPort int `mapstructure:"lobby_port"`

	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
	CAPath   string `mapstructure:"ca_path"`

	// CommandGroup is the topic the agent subscribes to on connect.
	CommandGroup string `mapstructure:"command_group"`

	// ActionDir holds the agent-side action dispatch table; it is
	// external glue the agent only records, never interprets here.
	ActionDir string `mapstructure:"action_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func agentDefaults(v *viper.Viper) {
	v.SetDefault("broker_ip", "127.0.0.1")
	v.SetDefault("broker_port", 35565)
	v.SetDefault("lobby_port", 35566)
	v.SetDefault("cert_path", "certs/agent.crt")
	v.SetDefault("key_path", "certs/agent.key")
	v.SetDefault("ca_path", "certs/ca.crt")
	v.SetDefault("command_group", "BROADCAST")
	v.SetDefault("action_dir", "actions")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// LoadAgent reads path as an ini-style key=value file and applies the
// documented defaults for anything left unset. An empty path yields
// pure defaults.
func LoadAgent(path string) (Agent, error) {
	v := viper.New()
	v.SetConfigType("ini")
	agentDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Agent{}, err
		}
	}

	var cfg Agent
	if err := unmarshalFlat(v, &cfg); err != nil {
		return Agent{}, err
	}
	return cfg, nil
}

// unmarshalFlat decodes viper's settings into out, flattening the ini
// "default" section so `vault_port = 1` works both bare and under an
// explicit [default] header.
func unmarshalFlat(v *viper.Viper, out interface{}) error {
	settings := v.AllSettings()
	if def, ok := settings["default"].(map[string]interface{}); ok {
		// File values land under "default"; registered defaults sit at
		// the top level. The file wins.
		for k, val := range def {
			settings[k] = val
		}
	}
	return mapstructure.WeakDecode(settings, out)
}
