package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/assessly/authcore/internal/config"
	"github.com/assessly/authcore/internal/mfa"
	"github.com/assessly/authcore/internal/security/password"
	"github.com/assessly/authcore/internal/security/totp"
)

// hashpwCmd genera un hash argon2id listo para insertar en el user store.
func hashpwCmd(cfgPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "hashpw <password>",
		Short: "Hashea una contraseña con los parámetros configurados",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			plain := args[0]

			policy := password.Policy{
				MinLength:     cfg.Password.Policy.MinLength,
				RequireUpper:  cfg.Password.Policy.RequireUpper,
				RequireLower:  cfg.Password.Policy.RequireLower,
				RequireDigit:  cfg.Password.Policy.RequireDigit,
				RequireSymbol: cfg.Password.Policy.RequireSymbol,
			}
			if violations := policy.Check(plain); len(violations) > 0 && !force {
				return fmt.Errorf("password no cumple la política (%s); usá --force para hashear igual",
					strings.Join(violations, ", "))
			}

			phc, err := password.Hash(password.Params{
				Memory:      cfg.Password.Memory,
				Time:        cfg.Password.Time,
				Parallelism: cfg.Password.Parallelism,
				KeyLen:      32,
			}, plain)
			if err != nil {
				return err
			}
			fmt.Println(phc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "hashear aunque no cumpla la política")
	return cmd
}

// totpEnrollCmd genera un secreto TOTP nuevo y su URL otpauth:// para QR.
func totpEnrollCmd() *cobra.Command {
	var issuer string

	cmd := &cobra.Command{
		Use:   "totp-enroll <account>",
		Short: "Genera un secreto TOTP y la URL de enrolamiento",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b32, err := totp.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Printf("secret: %s\n", b32)
			fmt.Printf("url:    %s\n", totp.OTPAuthURL(issuer, args[0], b32))
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "authcore", "issuer a mostrar en la app TOTP")
	return cmd
}

// backupCodesCmd imprime un set de backup codes nuevo junto con sus hashes.
func backupCodesCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "backup-codes",
		Short: "Genera backup codes (claro + hash para persistir)",
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, hashes, err := mfa.GenerateBackupCodes(n)
			if err != nil {
				return err
			}
			for i := range plain {
				fmt.Printf("%s\t%s\n", plain[i], hashes[i])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 10, "cantidad de códigos")
	return cmd
}
