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

// vaultmesh-broker is the pub/sub broker daemon: mTLS vault port,
// plaintext enrollment lobby, local admin console.
package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sabouaram/vaultmesh/access"
	"github.com/sabouaram/vaultmesh/admin"
	"github.com/sabouaram/vaultmesh/config"
	"github.com/sabouaram/vaultmesh/engine"
	"github.com/sabouaram/vaultmesh/identity"
	"github.com/sabouaram/vaultmesh/logging"
	"github.com/sabouaram/vaultmesh/metrics"
	"github.com/sabouaram/vaultmesh/pki"
	"github.com/sabouaram/vaultmesh/queue"
	"github.com/sabouaram/vaultmesh/registry"
	"github.com/sabouaram/vaultmesh/store"
	"github.com/sabouaram/vaultmesh/topic"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "vaultmesh-broker",
		Short:         "Secure pub/sub broker and agent state store",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runBroker,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "broker.conf", "broker configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Generate the broker's CA and server certificate material",
		RunE:  runInit,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadBroker(cfgFile)
	if err != nil {
		return err
	}

	auth, caCert, caKey, err := pki.NewSelfSigned("vaultmesh-ca", 10*365*24*time.Hour)
	if err != nil {
		return err
	}

	host, err := os.Hostname()
	if err != nil {
		host = "vaultmesh-broker"
	}
	srvCert, srvKey, err := pki.IssueServerCert(auth, host)
	if err != nil {
		return err
	}

	for _, f := range []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{cfg.CAPath, caCert, 0o644},
		{cfg.CAKeyPath, caKey, 0o600},
		{cfg.CertPath, srvCert, 0o644},
		{cfg.KeyPath, srvKey, 0o600},
	} {
		if err = os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return err
		}
		if err = os.WriteFile(f.path, f.data, f.mode); err != nil {
			return err
		}
		cmd.Printf("wrote %s\n", f.path)
	}
	return nil
}

func runBroker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadBroker(cfgFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	policy, err := access.Load(cfg.PolicyPath)
	if err != nil {
		return err
	}

	auth, err := pki.Load(cfg.CAPath, cfg.CAKeyPath)
	if err != nil {
		return err
	}
	serverCert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	reg := registry.New(registry.Config{})
	topics := topic.New(topic.Config{}, reg)
	tasks := queue.New(queue.Config{})

	var met *metrics.Set
	if cfg.MetricsAddr != "" {
		met = metrics.New()
		go func() {
			if err := met.Serve(cfg.MetricsAddr); err != nil {
				logging.Component(log, "metrics").WithError(err).Error("metrics endpoint failed")
			}
		}()
	}

	eng := engine.New(engine.Config{
		VaultPort: cfg.VaultPort,
		LobbyPort: cfg.LobbyPort,
	}, engine.Deps{
		Log:       log,
		Registry:  reg,
		Topics:    topics,
		Queue:     tasks,
		Policy:    policy,
		Store:     st,
		Authority: auth,
		Resolver:  identity.NewDNSResolver(),
		Metrics:   met,
		TLS:       auth.ServerTLSConfig(serverCert),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		repl := &admin.REPL{
			Log:    logging.Component(log, "admin"),
			Reg:    reg,
			Topics: topics,
			Store:  st,
			Quit:   cancel,
		}
		go repl.Run(os.Stdin, os.Stdout)
	} else {
		logging.Component(log, "admin").Info("starting in daemon mode, console disabled")
	}

	return eng.Run(ctx)
}
