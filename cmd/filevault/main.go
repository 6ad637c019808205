// Точка входа File Vault — сервиса хранения зашифрованных файлов.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/bigkaa/goartstore/filevault/internal/codec"
	"github.com/bigkaa/goartstore/filevault/internal/config"
	"github.com/bigkaa/goartstore/filevault/internal/database"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// newApp описывает команды CLI. Без команды запускается сервер.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "filevault",
		Usage:   "Хранилище зашифрованных файлов с дедупликацией по содержимому",
		Version: config.Version,
		Action:  serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Запустить HTTP-сервер (конфигурация из FV_* и .env)",
				Action: serveAction,
			},
			{
				Name:  "migrate",
				Usage: "Применить миграции PostgreSQL и выйти",
				Action: func(_ context.Context, _ *cli.Command) error {
					cfg, err := config.Load()
					if err != nil {
						return fmt.Errorf("ошибка конфигурации: %w", err)
					}
					return database.Migrate(cfg, config.SetupLogger(cfg))
				},
			},
			{
				Name:  "keygen",
				Usage: "Сгенерировать ключ шифрования для FV_ENCRYPTION_KEY",
				Action: func(_ context.Context, cmd *cli.Command) error {
					key, err := codec.GenerateKey()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, key)
					return err
				},
			},
			{
				Name:      "hash-password",
				Usage:     "Получить argon2id-хэш пароля для FV_LOGIN_PASSWORD_HASH",
				ArgsUsage: "<password>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "password"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					password := cmd.StringArg("password")
					if password == "" {
						return errors.New("не указан пароль")
					}
					hash, err := service.HashPassword(password)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, hash)
					return err
				},
			},
		},
	}
}
