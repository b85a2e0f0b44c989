package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/jwt"
	"github.com/dropDatabas3/tokenguard/internal/security/secretbox"
	"github.com/dropDatabas3/tokenguard/internal/util/atomicwrite"
)

func keysCmd(c *cli) *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Genera material criptográfico"}

	var (
		alg    string
		dir    string
		prefix string
		force  bool
	)
	signing := &cobra.Command{
		Use:   "audit",
		Short: "Genera el par de claves que firma el log de auditoría",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := audit.GenerateKeyPair(alg)
			if err != nil {
				return err
			}
			write := atomicwrite.WriteNew
			if force {
				write = atomicwrite.WriteFile
			}
			privPath := filepath.Join(dir, prefix+".key")
			pubPath := filepath.Join(dir, prefix+".pub")
			if err := write(privPath, priv, 0o600); err != nil {
				return err
			}
			if err := write(pubPath, pub, 0o644); err != nil {
				return err
			}
			res := map[string]string{"algorithm": alg, "private_key_file": privPath, "public_key_file": pubPath}
			c.print(res, func() {
				fmt.Printf("private key: %s\npublic key:  %s\n", privPath, pubPath)
				fmt.Printf("audit:\n  private_key_file: %s\n  public_key_file: %s\n", privPath, pubPath)
			})
			return nil
		},
	}
	signing.Flags().StringVar(&alg, "alg", "ed25519", "algoritmo: ed25519|ecdsa|rsa")
	signing.Flags().StringVar(&dir, "dir", "keys", "directorio destino")
	signing.Flags().StringVar(&prefix, "name", "audit", "nombre base de los archivos")
	signing.Flags().BoolVar(&force, "force", false, "sobrescribir archivos existentes")

	box := &cobra.Command{
		Use:   "secretbox",
		Short: "Genera una clave para security.secretbox_key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretbox.GenerateKey()
			if err != nil {
				return err
			}
			c.print(map[string]string{"secretbox_key": key}, func() {
				fmt.Printf("%s=%s\n", secretbox.EnvVar, key)
			})
			return nil
		},
	}

	keys.AddCommand(signing, box)
	return keys
}

func adminCmd(c *cli) *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Credenciales de administración"}

	var (
		sub   string
		role  string
		realm string
		ttl   time.Duration
	)
	token := &cobra.Command{
		Use:   "token",
		Short: "Emite un access token firmado con security.admin_jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" {
				return fmt.Errorf("--sub es requerido")
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Security.AdminJWTSecret == "" {
				return jwt.ErrNoSecret
			}
			iss := jwt.NewIssuer(cfg.Security.AdminJWTIssuer, []byte(cfg.Security.AdminJWTSecret))
			tok, exp, err := iss.Issue(sub, role, realm, ttl)
			if err != nil {
				return err
			}
			c.print(map[string]any{"access_token": tok, "expires_at": exp}, func() {
				fmt.Println(tok)
			})
			return nil
		},
	}
	token.Flags().StringVar(&sub, "sub", "", "nombre del administrador o usuario")
	token.Flags().StringVar(&role, "role", jwt.RoleAdmin, "rol: admin|user")
	token.Flags().StringVar(&realm, "realm", "", "realm del usuario (rol user)")
	token.Flags().DurationVar(&ttl, "ttl", time.Hour, "vigencia del token")

	admin.AddCommand(token)
	return admin
}
