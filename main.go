package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nudgeworks/journey/agent"
	"github.com/nudgeworks/journey/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "journey", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().Duration("poll-interval", 30*time.Second, "interval between execution ticks")
	cmd.Flags().Int("batch-size", 200, "max due enrollments dispatched per tick")
	cmd.Flags().Int("max-steps-per-tick", 25, "max immediate steps per enrollment per tick")
	cmd.Flags().Int("max-step-failures", 3, "consecutive transient failures before an enrollment fails")
	cmd.Flags().Duration("claim-lease", 2*time.Minute, "enrollment claim lease duration")
	cmd.Flags().Duration("http-call-timeout", 10*time.Second, "timeout for external call steps")
	cmd.Flags().Duration("trigger-lookback", 24*time.Hour, "lookback window for subject triggers")
	cmd.Flags().String("analytics-file", "", "file to collect step analytics, empty disables collection")
	cmd.Flags().StringSlice("field-allow-list", nil, "subject fields mutable by action steps")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.PollInterval = viper.GetDuration("poll-interval")
	c.cfg.BatchSize = viper.GetInt("batch-size")
	c.cfg.MaxStepsPerTick = viper.GetInt("max-steps-per-tick")
	c.cfg.MaxStepFailures = viper.GetInt("max-step-failures")
	c.cfg.ClaimLease = viper.GetDuration("claim-lease")
	c.cfg.HttpCallTimeout = viper.GetDuration("http-call-timeout")
	c.cfg.TriggerLookback = viper.GetDuration("trigger-lookback")
	c.cfg.AnalyticsFile = viper.GetString("analytics-file")
	c.cfg.FieldAllowList = viper.GetStringSlice("field-allow-list")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "journey",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
