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

// vaultmesh-agent is the fleet-side client: a long-lived subscriber
// (run), a one-shot state reader/writer (get/set), and the enrollment
// helper that obtains a signed certificate from the lobby port.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	keyFlag string
	valFlag string

	enrollHost string
)

func main() {
	root := &cobra.Command{
		Use:           "vaultmesh-agent",
		Short:         "VaultMesh fleet agent",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runAgent,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "agent.conf", "agent configuration file")

	run := &cobra.Command{
		Use:   "run",
		Short: "Connect, subscribe to the command group, print inbound commands",
		RunE:  runAgent,
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Write one state key on the broker and exit",
		RunE:  runSet,
	}
	set.Flags().StringVar(&keyFlag, "key", "", "state key")
	set.Flags().StringVar(&valFlag, "value", "", "state value")
	_ = set.MarkFlagRequired("key")
	_ = set.MarkFlagRequired("value")

	get := &cobra.Command{
		Use:   "get",
		Short: "Read one state key from the broker and exit",
		RunE:  runGet,
	}
	get.Flags().StringVar(&keyFlag, "key", "", "state key")
	_ = get.MarkFlagRequired("key")

	enroll := &cobra.Command{
		Use:   "enroll",
		Short: "Request a signed certificate from the broker's lobby port",
		RunE:  runEnroll,
	}
	enroll.Flags().StringVar(&enrollHost, "hostname", "", "this agent's DNS name (certificate common name)")
	_ = enroll.MarkFlagRequired("hostname")

	root.AddCommand(run, set, get, enroll)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
