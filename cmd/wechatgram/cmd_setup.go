package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wechatgram/internal/config"
	"github.com/user/wechatgram/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("wechatgram setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. Telegram bot token
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token", cfg.Telegram.Token)

		// 2. Operator chat id
		chatID := ""
		if cfg.Telegram.ChatID != 0 {
			chatID = strconv.FormatInt(cfg.Telegram.ChatID, 10)
		}
		for {
			chatID = prompt(scanner, "Telegram chat id", chatID)
			n, err := strconv.ParseInt(chatID, 10, 64)
			if err == nil && n != 0 {
				cfg.Telegram.ChatID = n
				break
			}
			fmt.Println("  chat id must be a non-zero integer")
			if chatID == "" {
				return fmt.Errorf("setup aborted: no chat id")
			}
			chatID = ""
		}

		// 3. Checkpoint schedule
		for {
			spec := prompt(scanner, "State checkpoint schedule", cfg.State.CheckpointSchedule)
			if err := scheduler.Validate(spec); err != nil {
				fmt.Println("  invalid schedule:", err)
				cfg.State.CheckpointSchedule = "@every 10m"
				continue
			}
			cfg.State.CheckpointSchedule = spec
			break
		}

		// 4. Local status API
		enabled := prompt(scanner, "Enable local HTTP API (y/n)", yesNo(cfg.HTTP.Enabled))
		cfg.HTTP.Enabled = strings.HasPrefix(strings.ToLower(enabled), "y")
		if cfg.HTTP.Enabled {
			cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
