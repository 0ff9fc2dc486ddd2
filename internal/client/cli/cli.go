// Package cli команды клиента contactsync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/contactsync/internal/client/api"
	"github.com/iudanet/contactsync/internal/client/auth"
	"github.com/iudanet/contactsync/internal/client/data"
	"github.com/iudanet/contactsync/internal/client/iocli"
	"github.com/iudanet/contactsync/internal/client/storage"
	"github.com/iudanet/contactsync/internal/client/storage/boltdb"
	clientsync "github.com/iudanet/contactsync/internal/client/sync"
	"github.com/iudanet/contactsync/internal/logger"
)

// Значения флагов по умолчанию
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultDBPath    = "contactsync-client.db"
	EnvPrefix        = "CONTACTSYNC"
)

// BuildInfo информация о сборке для --version
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// Env окружение процесса: терминал пользователя и поток для логов
type Env struct {
	IO     iocli.IO
	Stderr io.Writer
	Build  BuildInfo
}

// Cli собранные сервисы клиента
type Cli struct {
	io    iocli.IO
	auth  *auth.Service
	data  *data.Service
	sync  *clientsync.Service
	state storage.SyncStorage
}

// rootState общие флаги и лениво открываемое приложение.
// База открывается только командами, которым она нужна (не для help/version).
type rootState struct {
	env    Env
	v      *viper.Viper
	cli    *Cli
	closer io.Closer
}

// Run выполняет команду с аргументами args
func Run(ctx context.Context, args []string, env Env) error {
	st := &rootState{env: env, v: viper.New()}
	root := newRootCommand(st)
	root.SetArgs(args)
	root.SetOut(env.IO)
	root.SetErr(env.Stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := st.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newRootCommand(st *rootState) *cobra.Command {
	root := &cobra.Command{
		Use:   "contactsync",
		Short: "Offline-first client for the shared address book",
		Long: `contactsync keeps a local copy of contacts and companies.

Edits are made offline and pushed to the server by 'contactsync sync',
which also pulls changes made by other clients. Edits rejected because
the server has a newer version are kept for review in 'contactsync conflicts'.`,
		Version:       st.env.Build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("contactsync client\nVersion:    %s\nBuild Date: %s\nGit Commit: %s\n",
		st.env.Build.Version, st.env.Build.BuildDate, st.env.Build.GitCommit))

	flags := root.PersistentFlags()
	flags.String("server", DefaultServerURL, "Server URL (env CONTACTSYNC_SERVER)")
	flags.String("db", DefaultDBPath, "Path to local database (env CONTACTSYNC_DB)")
	flags.BoolP("verbose", "v", false, "Verbose logging to stderr")

	st.v.SetEnvPrefix(EnvPrefix)
	for _, name := range []string{"server", "db", "verbose"} {
		_ = st.v.BindPFlag(name, flags.Lookup(name))
		_ = st.v.BindEnv(name)
	}

	root.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)
	root.AddCommand(
		newRegisterCmd(st),
		newLoginCmd(st),
		newLogoutCmd(st),
		newStatusCmd(st),
		newContactCmd(st),
		newCompanyCmd(st),
		newSyncCmd(st),
		newConflictsCmd(st),
	)
	return root
}

// app открывает локальную базу и собирает сервисы при первом обращении
func (st *rootState) app(ctx context.Context) (*Cli, error) {
	if st.cli != nil {
		return st.cli, nil
	}

	level := "warn"
	if st.v.GetBool("verbose") {
		level = "debug"
	}
	log, _, err := logger.New(logger.Config{Level: level, Format: logger.FormatText}, st.env.Stderr)
	if err != nil {
		return nil, err
	}

	dbPath := st.v.GetString("db")
	store, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	log.Debug("Local database opened", slog.String("path", dbPath))

	apiClient := api.NewClient(st.v.GetString("server"))
	authService := auth.NewService(apiClient, store, log)

	st.closer = store
	st.cli = &Cli{
		io:    st.env.IO,
		auth:  authService,
		data:  data.NewService(store, store),
		sync:  clientsync.NewService(apiClient, authService, store, store, log),
		state: store,
	}
	return st.cli, nil
}

func (st *rootState) close() error {
	if st.closer == nil {
		return nil
	}
	err := st.closer.Close()
	st.closer = nil
	st.cli = nil
	return err
}

// runE оборачивает команду, которой нужно приложение
func (st *rootState) runE(fn func(ctx context.Context, c *Cli, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := st.app(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd.Context(), c, cmd, args)
	}
}

// prompt возвращает значение флага или запрашивает его у пользователя
func (c *Cli) prompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	input, err := c.io.ReadInput(label + ": ")
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	if input == "" {
		return "", errors.New(label + " cannot be empty")
	}
	return input, nil
}
