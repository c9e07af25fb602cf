// Package cmd holds the roomctl commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cwrk-planet/classroom-service/internal/logger"
	"github.com/cwrk-planet/classroom-service/internal/service"
	"github.com/cwrk-planet/classroom-service/internal/store"
)

const (
	dataDirKey     = "data_dir"
	filenameKey    = "filename"
	graceWindowKey = "grace_window"
	serverKey      = "server"
	redisAddrKey   = "redis_addr"
	userIDKey      = "user_id"
	usernameKey    = "username"
	roleKey        = "role"
	logLevelKey    = "log_level"
)

// app carries what every command needs; one per root command so tests can
// build isolated trees.
type app struct {
	v        *viper.Viper
	cfgFile  string
	provider *store.Provider
	now      func() time.Time
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), now: time.Now}

	root := &cobra.Command{
		Use:          "roomctl",
		Short:        "Operate classroom rooms and join live sessions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			level, err := logger.ParseLevel(a.v.GetString(logLevelKey))
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Service: "roomctl",
				Env:     logger.EnvDev,
				Backend: logger.BackendStd,
				Level:   level,
				Output:  cmd.ErrOrStderr(),
			})
			a.provider = store.NewProvider(a.now, slog.Default().With("component", "store"))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.roomctl.yaml)")
	pf.String("data-dir", "./data", "directory of the privileged store file")
	pf.String("filename", "test-data.json", "store file name")
	pf.Duration("grace-window", service.DefaultGraceWindow, "how long finished lectures keep their room")
	pf.String("server", "http://localhost:8080", "base URL of the classroom service")
	pf.String("redis-addr", "", "redis address for the participant cache (memory when empty)")
	pf.String("user-id", "", "identity used by join")
	pf.String("username", "", "display name used by join")
	pf.String("role", "student", "role used by join (teacher|student|admin)")
	pf.String("log-level", "warn", "log level (debug|info|warn|error)")

	for key, flag := range map[string]string{
		dataDirKey:     "data-dir",
		filenameKey:    "filename",
		graceWindowKey: "grace-window",
		serverKey:      "server",
		redisAddrKey:   "redis-addr",
		userIDKey:      "user-id",
		usernameKey:    "username",
		roleKey:        "role",
		logLevelKey:    "log-level",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newSweepCmd(a),
		newTransitionCmd(a),
		newRoomsCmd(a),
		newJoinCmd(a),
	)
	return root
}

// loadConfig layers flags over ROOMCTL_* variables over the config file.
func (a *app) loadConfig() error {
	a.v.SetEnvPrefix("ROOMCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".roomctl")
	}
	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && a.cfgFile == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// services wires the privileged file store and the room services over it.
func (a *app) services() (*service.LectureService, *service.RoomService, error) {
	st, err := a.provider.Instance(store.Capabilities{
		Context:  store.Privileged,
		DataDir:  a.v.GetString(dataDirKey),
		Filename: a.v.GetString(filenameKey),
	})
	if err != nil {
		return nil, nil, err
	}
	rooms := service.NewRoomService(st, service.RoomConfig{
		GraceWindow: a.v.GetDuration(graceWindowKey),
		Now:         a.now,
	})
	return service.NewLectureService(st, rooms, a.now), rooms, nil
}
