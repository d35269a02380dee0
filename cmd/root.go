package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/dashboard"
	"github.com/spigell/cv-matcher/internal/filtering"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matcher"
	"github.com/spigell/cv-matcher/internal/session"
	"github.com/spigell/cv-matcher/internal/submission"
)

const (
	app       = "cv-matcher"
	envPrefix = "CV_MATCHER"
)

type Config struct {
	APIURL      string            `mapstructure:"api-url"`
	Token       string            `mapstructure:"token"`
	TokenFile   string            `mapstructure:"token-file"`
	UserAgent   string            `mapstructure:"user-agent"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	DownloadDir string            `mapstructure:"download-dir"`
	Similarity  *SimilarityConfig `mapstructure:"similarity"`
	Upload      *UploadConfig     `mapstructure:"upload"`
}

type SimilarityConfig struct {
	Strategy    string        `mapstructure:"strategy"`
	MaxInFlight int           `mapstructure:"max-in-flight"`
	Delay       time.Duration `mapstructure:"delay"`
}

type UploadConfig struct {
	MaxSize    int64    `mapstructure:"max-size"`
	Extensions []string `mapstructure:"extensions"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-matcher is a cli for scoring uploaded CVs against job descriptions",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	bindings := map[string][]string{
		"api-url":    {envPrefix + "_API_URL", "NEXT_PUBLIC_API_URL"},
		"token":      {envPrefix + "_TOKEN"},
		"token-file": {envPrefix + "_TOKEN_FILE"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			log.Fatalf("binding %s environment variables: %v", strings.Join(envs, ", "), err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("similarity.strategy", string(submission.Concurrent))
	viper.SetDefault("upload.extensions", filtering.DefaultExtensions)
	viper.SetDefault("download-dir", ".")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the backend. Prefer token-file in the config or CV_MATCHER_TOKEN_FILE.")
	rootCmd.PersistentFlags().String("api-url", "", "backend base url")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
}

func initConfig() {
	// Config is not needed to print the version.
	if versionCmd.CalledAs() != "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine, everything can come from env and flags.
	// An explicit or broken config is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Similarity == nil {
		config.Similarity = &SimilarityConfig{}
	}
	if config.Upload == nil {
		config.Upload = &UploadConfig{}
	}

	return config, nil
}

// setup builds the logger, config and dashboard shared by all commands.
// It exits when the session cannot be established.
func setup() (*zap.Logger, *Config, *dashboard.Controller) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting", zap.String("version", version), zap.String("api_url", config.APIURL))

	sess, err := session.Load(session.Source{Value: config.Token, File: config.TokenFile})
	if err != nil {
		logger.Fatal("loading backend token",
			zap.Error(err),
			zap.String("hint", "log in and set CV_MATCHER_TOKEN_FILE or the 'token-file' key in the configuration file"),
		)
	}
	if exp := sess.ExpiresAt(); !exp.IsZero() {
		logger.Debug("token loaded", zap.Time("expires_at", exp))
	}

	client := matcher.New(sess, logger)
	client.SetAPIURL(config.APIURL)
	if config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}
	if config.Timeout > 0 {
		client.HTTPClient.Timeout = config.Timeout
	}

	strategy, err := submission.ParseStrategy(config.Similarity.Strategy)
	if err != nil {
		logger.Fatal("parsing similarity strategy", zap.Error(err))
	}

	submitter := submission.New(client, &submission.Config{
		Strategy:    strategy,
		MaxInFlight: config.Similarity.MaxInFlight,
		Delay:       config.Similarity.Delay,
	}, logger)

	ctrl := dashboard.New(client, submitter, &dashboard.Options{
		Intake: &filtering.Config{
			Extensions: config.Upload.Extensions,
			MaxSize:    config.Upload.MaxSize,
		},
		DownloadDir: config.DownloadDir,
	}, logger)

	return logger, config, ctrl
}
