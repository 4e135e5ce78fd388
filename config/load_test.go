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

package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/vaultmesh/config"
)

func writeFile(dir, name, content string) string {
	p := filepath.Join(dir, name)
	Expect(os.WriteFile(p, []byte(content), 0o600)).To(Succeed())
	return p
}

var _ = Describe("Broker configuration", func() {
	It("yields documented defaults with no file", func() {
		cfg, err := config.LoadBroker("")
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.VaultPort).To(Equal(35565))
		Expect(cfg.LobbyPort).To(Equal(35566))
		Expect(cfg.DBPath).To(Equal("broker_audit.db"))
	})

	It("reads key=value pairs", func() {
		p := writeFile(GinkgoT().TempDir(), "broker.conf", `
vault_port = 4443
lobby_port = 4444
cert_path = /etc/vaultmesh/server.crt
db_path = /var/lib/vaultmesh/audit.db
`)
		cfg, err := config.LoadBroker(p)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.VaultPort).To(Equal(4443))
		Expect(cfg.LobbyPort).To(Equal(4444))
		Expect(cfg.CertPath).To(Equal("/etc/vaultmesh/server.crt"))
		Expect(cfg.DBPath).To(Equal("/var/lib/vaultmesh/audit.db"))
		// Untouched keys keep their defaults.
		Expect(cfg.CAPath).To(Equal("certs/ca.crt"))
	})

	It("fails on a missing file", func() {
		_, err := config.LoadBroker("/no/such/broker.conf")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Agent configuration", func() {
	It("reads connection and subscription settings", func() {
		p := writeFile(GinkgoT().TempDir(), "agent.conf", `
broker_ip = 10.0.0.5
broker_port = 4443
command_group = CMD-GRP-1
`)
		cfg, err := config.LoadAgent(p)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.BrokerIP).To(Equal("10.0.0.5"))
		Expect(cfg.BrokerPort).To(Equal(4443))
		Expect(cfg.CommandGroup).To(Equal("CMD-GRP-1"))
		Expect(cfg.CAPath).To(Equal("certs/ca.crt"))
	})

	It("defaults the command group to the broadcast topic", func() {
		cfg, err := config.LoadAgent("")
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.CommandGroup).To(Equal("BROADCAST"))
	})
})
