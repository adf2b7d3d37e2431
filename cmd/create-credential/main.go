// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command create-credential registers a long-lived credential with the
// configured credential store via myproxy-init, driving its interactive
// passphrase prompts over a pipe, then prints server:port:name:password
// on success so it can be captured into a production's configuration.
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/padme-exp/prodctl/pkg/config"
)

const (
	proxyLifetimeHours = 24
	credLifetimeHours  = 720
	vomsName           = "vo.padme.org"
)

var (
	credName   string
	credPasswd string
	server     string
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "create-credential",
	Short: "Register a long-lived credential with the credential store",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&credName, "name", "N", "", "credential name (required)")
	f.StringVarP(&credPasswd, "password", "P", "", "credential-store password, generated if omitted")
	f.StringVarP(&server, "server", "s", "", "credential-store server, defaults to the configured one")
	f.IntVarP(&port, "port", "p", 0, "credential-store port, defaults to the configured one")
	rootCmd.MarkFlagRequired("name")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("create-credential: load config: %w", err)
	}

	if server == "" {
		server = cfg.CredentialStoreServer
	}
	if port == 0 {
		port = cfg.CredentialStorePort
	}
	if credPasswd == "" {
		credPasswd, err = randomPassword()
		if err != nil {
			return fmt.Errorf("create-credential: generate password: %w", err)
		}
	}

	gridPassword := os.Getenv("GLOBUS_PASSWORD")
	if gridPassword == "" {
		return fmt.Errorf("create-credential: GLOBUS_PASSWORD must be set (this command never prompts interactively)")
	}

	if err := registerCredential(cfg.Tools.MyProxyInit, gridPassword); err != nil {
		return fmt.Errorf("create-credential: register %s on %s: %w", credName, server, err)
	}

	fmt.Printf("%s:%d:%s:%s\n", server, port, credName, credPasswd)
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// registerCredential drives myproxy-init's interactive passphrase
// prompts over stdin, mirroring the expect-script sequence the original
// tool drove with pexpect: grid passphrase, then the new MyProxy
// passphrase twice.
func registerCredential(myProxyInit, gridPassword string) error {
	c := exec.Command(myProxyInit,
		"--proxy_lifetime", fmt.Sprintf("%d", proxyLifetimeHours),
		"--cred_lifetime", fmt.Sprintf("%d", credLifetimeHours),
		"--voms", vomsName,
		"--pshost", server,
		"--psport", fmt.Sprintf("%d", port),
		"--dn_as_username",
		"--credname", credName,
		"--local_proxy",
	)

	stdin, err := c.StdinPipe()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	if err := c.Start(); err != nil {
		return err
	}

	go func() {
		defer stdin.Close()
		fmt.Fprintln(stdin, gridPassword)
		time.Sleep(200 * time.Millisecond)
		fmt.Fprintln(stdin, credPasswd)
		time.Sleep(200 * time.Millisecond)
		fmt.Fprintln(stdin, credPasswd)
	}()

	if err := c.Wait(); err != nil {
		return fmt.Errorf("%w: %s", err, out.String())
	}
	return nil
}
