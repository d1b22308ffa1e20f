package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"penny.bot/setup"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(memoriesCmd)

	rootCmd.PersistentFlags().String("discord-token", "", "Discord bot token")
	rootCmd.PersistentFlags().String("guild-id", "", "Discord guild ID")
	rootCmd.PersistentFlags().
		String("voice-channel-id", "", "Discord voice channel ID")
	rootCmd.PersistentFlags().
		String("deepgram-api-key", "", "Deepgram API key")
	rootCmd.PersistentFlags().
		String("musicgen-url", "", "MusicGen inference server URL")
	rootCmd.PersistentFlags().
		String("database-url", "", "Postgres URL for the memory store")
	rootCmd.PersistentFlags().Int("http-port", 8000, "HTTP server port")
	rootCmd.PersistentFlags().
		Int("flush-silence-ms", 1000, "Silence before a speaker's buffer is flushed")
	rootCmd.PersistentFlags().
		Int("transcribe-timeout-s", 120, "Deadline for awaiting a transcription")

	viper.BindPFlag(
		"discord_token",
		rootCmd.PersistentFlags().Lookup("discord-token"),
	)
	viper.BindPFlag(
		"guild_id",
		rootCmd.PersistentFlags().Lookup("guild-id"),
	)
	viper.BindPFlag(
		"voice_channel_id",
		rootCmd.PersistentFlags().Lookup("voice-channel-id"),
	)
	viper.BindPFlag(
		"deepgram_api_key",
		rootCmd.PersistentFlags().Lookup("deepgram-api-key"),
	)
	viper.BindPFlag(
		"musicgen_url",
		rootCmd.PersistentFlags().Lookup("musicgen-url"),
	)
	viper.BindPFlag(
		"database_url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag(
		"flush_silence_ms",
		rootCmd.PersistentFlags().Lookup("flush-silence-ms"),
	)
	viper.BindPFlag(
		"transcribe_timeout_s",
		rootCmd.PersistentFlags().Lookup("transcribe-timeout-s"),
	)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %s\n", err)
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "penny",
	Short: "Penny coordinates voice transcription, music generation, and memory",
	Long: `Penny is a Discord bot that transcribes voice channels, generates music
on request, plays audio into the channel, and keeps a persistent memory,
all coordinated through one in-process event bus.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start all services and the HTTP server",
	Run:   runServe,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run configuration",
	Run: func(cmd *cobra.Command, args []string) {
		setup.RunSetup()
	},
}

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "List recent memories",
	Run:   runMemories,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
