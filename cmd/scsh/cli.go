package main

import (
	"fmt"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vorteil/scardfs/pkg/sclog"
)

var log sclog.Logger

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool
	flagImage   string
)

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")
	rootCmd.PersistentFlags().StringVar(&flagImage, "image", "", "path to a smartcard image file (default from ~/.scshrc.yaml)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &sclog.CLI{}

		if flagJSON {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}
		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger

		if err := loadConfig(); err != nil {
			return err
		}
		if flagImage == "" {
			flagImage = viper.GetString("image")
		}
		return nil
	}

	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(inspectCmd)
}

// loadConfig reads ~/.scshrc.yaml if present, falling back to built-in
// defaults when the file does not exist. Any other read error is returned.
func loadConfig() error {
	viper.SetDefault("image", "card.img")
	viper.SetConfigName(".scshrc")
	viper.SetConfigType("yaml")

	home, err := homedir.Dir()
	if err == nil {
		viper.AddConfigPath(home)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading scsh config: %w", err)
		}
	}

	return nil
}

func defaultImagePath() string {
	if flagImage != "" {
		return flagImage
	}
	home, err := homedir.Dir()
	if err != nil {
		return "card.img"
	}
	return filepath.Join(home, "card.img")
}

var rootCmd = &cobra.Command{
	Use:   "scsh",
	Short: "scsh is an interactive shell and inspector for smartcard file-system images",
	Long: `scsh drives a persistent ISO/IEC 7816-4-style smartcard file-system image:
repl sends hand-written APDUs to it interactively, and inspect walks its
MF/DF/ADF/EF tree for offline debugging.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print scsh's version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scsh %s (%s)\n", release, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
