package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"weekplanner/internal/hub"
	"weekplanner/internal/pushclient"
)

// Commands that talk to a running server.

var (
	serverURL string
	adminUser string
	adminPass string
)

func baseURL() (string, error) {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/"), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Listen, nil
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the server's upstream caches",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Invalidate the calendar and task caches and notify displays",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := baseURL()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/api/clear-cache", nil)
		if err != nil {
			return err
		}
		if adminUser != "" {
			req.SetBasicAuth(adminUser, adminPass)
		}
		resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("clear cache: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print push notifications from a running server, reconnecting as needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := baseURL()
		if err != nil {
			return err
		}
		opts := pushclient.Options{}
		if serverURL == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.ReconnectDelay = cfg.Stream.ReconnectDelay
			opts.MaxReconnectDelay = cfg.Stream.MaxReconnectDelay
		}

		ctx, cancel := signalContext()
		defer cancel()

		out := json.NewEncoder(cmd.OutOrStdout())
		err = pushclient.New(base+"/api/events-stream", opts).Run(ctx, func(msg hub.Message) {
			_ = out.Encode(msg)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{cacheClearCmd, listenCmd} {
		c.Flags().StringVar(&serverURL, "server", "", "Server base URL (default: from config listen)")
	}
	cacheClearCmd.Flags().StringVar(&adminUser, "user", "", "Admin username")
	cacheClearCmd.Flags().StringVar(&adminPass, "password", "", "Admin password")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd, listenCmd)
}
