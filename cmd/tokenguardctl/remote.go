package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// client habla con un tokenguard en marcha.
type client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequest(method, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func remoteFlags(cmd *cobra.Command) *client {
	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	cmd.Flags().StringVar(&cl.BaseURL, "url", envOr("TOKENGUARD_URL", "http://localhost:8080"), "URL base del servidor (env TOKENGUARD_URL)")
	cmd.Flags().StringVar(&cl.Token, "token", envOr("TOKENGUARD_TOKEN", ""), "access token (env TOKENGUARD_TOKEN)")
	return cl
}

func (c *cli) printRaw(status int, body []byte) {
	var v any
	if json.Unmarshal(body, &v) == nil {
		c.print(v, nil)
		return
	}
	fmt.Printf("status=%d %s\n", status, body)
}

func checkCmd(c *cli) *cobra.Command {
	var (
		serial, pass, txid string
		remote             *client
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Valida un OTP contra el servidor (/validate/check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serial == "" || pass == "" {
				return fmt.Errorf("--serial y --pass son requeridos")
			}
			payload := map[string]string{"serial": serial, "pass": pass}
			if txid != "" {
				payload["transaction_id"] = txid
			}
			b, _ := json.Marshal(payload)
			status, body, err := remote.do(http.MethodPost, "/validate/check", b)
			if err != nil {
				return err
			}
			c.printRaw(status, body)
			var res struct {
				Result struct {
					Status bool `json:"status"`
					Value  bool `json:"value"`
				} `json:"result"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("check: status=%d", status)
			}
			if !res.Result.Value {
				return fmt.Errorf("otp rejected")
			}
			return nil
		},
	}
	remote = remoteFlags(cmd)
	cmd.Flags().StringVar(&serial, "serial", "", "serial del token")
	cmd.Flags().StringVar(&pass, "pass", "", "OTP")
	cmd.Flags().StringVar(&txid, "transaction-id", "", "transaction id de un challenge")
	return cmd
}

func pingCmd(c *cli) *cobra.Command {
	var remote *client
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Consulta /healthz del servidor",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := remote.do(http.MethodGet, "/healthz", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("ping: status=%d body=%s", status, body)
			}
			c.printRaw(status, body)
			return nil
		},
	}
	remote = remoteFlags(cmd)
	return cmd
}
