package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env es opcional; en contenedores las vars vienen del entorno.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "authcore",
		Short: "Servicio de autenticación con MFA, rate limiting y auditoría",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("AUTHCORE_CONFIG", ""), "ruta al YAML de configuración")

	root.AddCommand(
		serveCmd(&cfgPath),
		hashpwCmd(&cfgPath),
		totpEnrollCmd(),
		backupCodesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
