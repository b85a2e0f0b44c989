package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokenguard/internal/app"
	"github.com/dropDatabas3/tokenguard/internal/otp"
	"github.com/dropDatabas3/tokenguard/internal/token"
)

func tokenCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "token", Short: "Enrolamiento y consulta de tokens"}

	var (
		req     token.EnrollRequest
		typ     string
		hashlib string
		otpkey  string
	)
	enroll := &cobra.Command{
		Use:   "enroll",
		Short: "Enrola un token hotp, totp o yubikey",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Type = strings.ToLower(typ)
			req.Hashlib = otp.Algorithm(strings.ToLower(hashlib))
			if otpkey != "" {
				secret, err := hex.DecodeString(otpkey)
				if err != nil {
					return fmt.Errorf("--otpkey debe ser hex: %w", err)
				}
				req.Secret = secret
			}
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				res, err := ct.Tokens.Enroll(ctx, req)
				if err != nil {
					return err
				}
				out := map[string]string{"serial": res.Serial, "otpkey": hex.EncodeToString(res.Secret)}
				if res.URL != "" {
					out["googleurl"] = res.URL
				}
				c.print(out, func() {
					fmt.Printf("serial: %s\notpkey: %s\n", res.Serial, out["otpkey"])
					if res.URL != "" {
						fmt.Printf("url:    %s\n", res.URL)
					}
				})
				return nil
			})
		},
	}
	enroll.Flags().StringVar(&typ, "type", otp.TypeHOTP, "hotp|totp|yubikey")
	enroll.Flags().StringVar(&req.Serial, "serial", "", "serial (vacío: se genera)")
	enroll.Flags().StringVar(&otpkey, "otpkey", "", "secreto en hex (vacío: se genera)")
	enroll.Flags().IntVar(&req.OTPLen, "otplen", 6, "dígitos del OTP")
	enroll.Flags().StringVar(&hashlib, "hashlib", string(otp.SHA1), "sha1|sha256|sha512")
	enroll.Flags().IntVar(&req.TimeStep, "timestep", 0, "paso totp en segundos (0: config)")
	enroll.Flags().StringVar(&req.Owner, "user", "", "usuario dueño")
	enroll.Flags().StringVar(&req.Realm, "realm", "", "realm del usuario")
	enroll.Flags().StringVar(&req.Description, "description", "", "descripción")
	enroll.Flags().IntVar(&req.MaxFail, "maxfail", 0, "máximo de fallos (0: config)")

	show := &cobra.Command{
		Use:   "show SERIAL",
		Short: "Muestra el estado de un token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				t, err := ct.Tokens.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{
					"serial": t.Serial, "tokentype": t.Type, "active": t.Active,
					"count": t.Count, "failcount": t.FailCount, "maxfail": t.MaxFail,
					"locked": t.Locked(), "user": t.Owner, "realm": t.Realm,
				}
				c.print(out, func() {
					fmt.Printf("%s (%s) active=%t locked=%t count=%d failcount=%d/%d user=%s realm=%s\n",
						t.Serial, t.Type, t.Active, t.Locked(), t.Count, t.FailCount, t.MaxFail, t.Owner, t.Realm)
				})
				return nil
			})
		},
	}

	root.AddCommand(enroll, show)
	return root
}
