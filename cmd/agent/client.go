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

package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sabouaram/vaultmesh/config"
	"github.com/sabouaram/vaultmesh/errs"
	"github.com/sabouaram/vaultmesh/logging"
	"github.com/sabouaram/vaultmesh/pki"
)

const pingInterval = 30 * time.Second

// dial opens the mutual-TLS tunnel to the broker's vault port.
func dial(cfg config.Agent) (*tls.Conn, error) {
	pair, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "loading agent keypair")
	}

	caPEM, err := os.ReadFile(cfg.CAPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "reading CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errs.New(errs.KindTLS, "no usable certificate in %q", cfg.CAPath)
	}

	addr := net.JoinHostPort(cfg.BrokerIP, strconv.Itoa(cfg.BrokerPort))
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{pair},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,

		// Agents address the broker by IP from their config; the
		// broker's certificate carries its hostname, so chain trust
		// against our private CA is the authenticator here.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errs.New(errs.KindTLS, "broker presented no certificate")
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return err
			}
			_, err = cert.Verify(x509.VerifyOptions{Roots: pool})
			return err
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "connecting to broker %s", addr)
	}
	return conn, nil
}

// oneShot sends one frame and prints the single reply line.
func oneShot(frame string) error {
	cfg, err := config.LoadAgent(cfgFile)
	if err != nil {
		return err
	}

	conn, err := dial(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if _, err = conn.Write([]byte(frame)); err != nil {
		return errs.Wrap(errs.KindTransport, err, "sending command")
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "reading reply")
	}
	fmt.Print(line)
	return nil
}

func runSet(*cobra.Command, []string) error {
	return oneShot(fmt.Sprintf("SET %s %s\n", keyFlag, valFlag))
}

func runGet(*cobra.Command, []string) error {
	return oneShot(fmt.Sprintf("GET %s\n", keyFlag))
}

// runAgent is the long-lived mode: subscribe to the configured command
// group plus the broadcast topic, heartbeat, and print every inbound
// frame. Dispatching frames to local actions is external glue and
// deliberately not interpreted here.
func runAgent(*cobra.Command, []string) error {
	cfg, err := config.LoadAgent(cfgFile)
	if err != nil {
		return err
	}
	log := logging.Component(
		logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}), "agent")

	conn, err := dial(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, topicName := range []string{cfg.CommandGroup, "BROADCAST"} {
		if _, err = fmt.Fprintf(conn, "SUBSCRIBE %s\n", topicName); err != nil {
			return errs.Wrap(errs.KindTransport, err, "subscribing to %s", topicName)
		}
	}

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := conn.Write([]byte("PING\n")); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		// Unblocks the read below so shutdown is prompt.
		_ = conn.SetReadDeadline(time.Now())
	}()

	log.WithField("broker", cfg.BrokerIP).Info("connected, waiting for commands")

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		fmt.Println(sc.Text())
	}
	if ctx.Err() != nil {
		log.Info("disconnecting from broker")
		return nil
	}
	if err := sc.Err(); err != nil {
		return errs.Wrap(errs.KindTransport, err, "broker connection lost")
	}
	log.Info("broker closed the connection")
	return nil
}

// runEnroll generates a keypair and CSR for --hostname, submits it to
// the lobby port, and persists the returned certificate alongside the
// key at the configured paths.
func runEnroll(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAgent(cfgFile)
	if err != nil {
		return err
	}

	csrPEM, keyPEM, err := pki.NewCSR(enrollHost)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.BrokerIP, strconv.Itoa(cfg.LobbyPort))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "connecting to lobby %s", addr)
	}
	defer func() { _ = conn.Close() }()

	if _, err = fmt.Fprintf(conn, "ENROLL %s\n%s", enrollHost, csrPEM); err != nil {
		return errs.Wrap(errs.KindTransport, err, "sending enrollment request")
	}

	_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	rd := bufio.NewReader(conn)
	status, err := rd.ReadString('\n')
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "reading enrollment reply")
	}
	if status != "SUCCESS: Certificate generated.\n" {
		return errs.New(errs.KindProtocol, "enrollment refused: %s", status)
	}

	var certPEM []byte
	buf := make([]byte, 4096)
	for {
		n, rerr := rd.Read(buf)
		certPEM = append(certPEM, buf[:n]...)
		if rerr != nil {
			break
		}
	}
	if len(certPEM) == 0 {
		return errs.New(errs.KindProtocol, "enrollment reply carried no certificate")
	}

	for _, f := range []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{cfg.CertPath, certPEM, 0o644},
		{cfg.KeyPath, keyPEM, 0o600},
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
