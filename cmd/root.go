package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "plateful",
	Short: "Loyalty and order-status service for restaurant digital menus",
	Long:  `plateful runs the loyalty engine behind restaurant digital menus: visit and spend tracking, tiered rewards, gift grants and conversions, and the commission bookkeeping tied to order status changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is examples/config.json)")

	rootCmd.PersistentFlags().String("listen-addr", ":8080", "HTTP listen address")
	rootCmd.PersistentFlags().String("store", "postgres", "Backing store (postgres or memory)")
	rootCmd.PersistentFlags().Bool("kafka-enabled", false, "Enable Kafka analytics output")
	rootCmd.PersistentFlags().String("kafka-broker-list", "localhost:9092", "Kafka broker list")
	rootCmd.PersistentFlags().String("session-window", "4h", "Session window for visit detection")
	rootCmd.PersistentFlags().Int("free-cancellations-per-day", 2, "Cancellations per day that keep their commission refund")
	rootCmd.PersistentFlags().String("event-log-path", "", "Directory for the JSONL event log (when Kafka is disabled)")

	viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr"))
	viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("kafka_enabled", rootCmd.PersistentFlags().Lookup("kafka-enabled"))
	viper.BindPFlag("kafka_broker_list", rootCmd.PersistentFlags().Lookup("kafka-broker-list"))
	viper.BindPFlag("session_window", rootCmd.PersistentFlags().Lookup("session-window"))
	viper.BindPFlag("free_cancellations_per_day", rootCmd.PersistentFlags().Lookup("free-cancellations-per-day"))
	viper.BindPFlag("event_log_path", rootCmd.PersistentFlags().Lookup("event-log-path"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(exportCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("examples")
		viper.SetConfigType("json")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
