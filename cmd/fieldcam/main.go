package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/fieldcam/internal/config"
	"github.com/franz/fieldcam/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "fieldcam",
		Short: "fieldcam - capture-and-delivery agent for a battery/SD camera node",
		Long: `fieldcam runs an unattended camera node: it captures periodic photos and
voice-activity-triggered audio clips, persists them durably on local
storage even when offline, and opportunistically uploads them to the
ingestion backend while enforcing storage retention and reporting
health telemetry.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/fieldcam/fieldcam.yaml)")
	rootCmd.PersistentFlags().String("storage-root", "", "storage root directory")
	rootCmd.PersistentFlags().String("api-base", "", "ingestion backend base URL")
	rootCmd.PersistentFlags().String("api-token", "", "device token for backend calls")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("storage.root", rootCmd.PersistentFlags().Lookup("storage-root"))
	viper.BindPFlag("api.base", rootCmd.PersistentFlags().Lookup("api-base"))
	viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("api-token"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("/etc/fieldcam")
		viper.AddConfigPath(".")
		viper.SetConfigName("fieldcam")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FIELDCAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
