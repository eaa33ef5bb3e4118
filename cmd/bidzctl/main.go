// Command bidzctl is the operator tool for a SecureBidz database: it runs
// the auction sweep from an external scheduler, lists audit entries and
// lifts account locks.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "bidzctl",
	Short:         "Operator commands for a SecureBidz deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./bidzctl.yaml)")
	flags.String("db-driver", "mysql", "database driver (mysql, sqlite)")
	flags.String("db-host", "127.0.0.1:3306", "mysql host:port")
	flags.String("db-user", "", "mysql user")
	flags.String("db-pass", "", "mysql password")
	flags.String("db-name", "", "mysql database name")
	flags.String("db-path", "securebidz.db", "sqlite file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	cobra.CheckErr(viper.BindPFlags(flags))

	rootCmd.AddCommand(sweepCmd, auditCmd, unlockCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("bidzctl")
	}
	viper.SetEnvPrefix("BIDZ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func dbConfig() utils.DBConfig {
	return utils.DBConfig{
		Driver:   viper.GetString("db-driver"),
		Host:     viper.GetString("db-host"),
		User:     viper.GetString("db-user"),
		Password: viper.GetString("db-pass"),
		Name:     viper.GetString("db-name"),
		Path:     viper.GetString("db-path"),
	}
}

// openStore connects and migrates. Operator commands never mint tokens and
// only log mail they would send.
func openStore() (*dbhelper.Store, error) {
	if _, err := utils.SetupLogger("", viper.GetString("log-level")); err != nil {
		return nil, err
	}
	log.SetOutput(os.Stderr)
	db, err := dbhelper.OpenDB(dbConfig())
	if err != nil {
		return nil, err
	}
	if err := dbhelper.InitDB(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return dbhelper.NewStore(db, mailer.LogMailer{}, &utils.TokenIssuer{}), nil
}

// operatorMeta tags audit entries written by this tool.
func operatorMeta() models.RequestMeta {
	host, _ := os.Hostname()
	return models.RequestMeta{
		RequestID: cuid2.Generate(),
		IPAddress: "local",
		UserAgent: fmt.Sprintf("bidzctl (%s@%s)", os.Getenv("USER"), host),
	}
}

func errorText(err error) string {
	var e *utils.Error
	if errors.As(err, &e) && e.Kind != utils.KIND_INTERNAL {
		return "error: " + e.Message
	}
	return "error: " + err.Error()
}
