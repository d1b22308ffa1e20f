package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"penny.bot/memory"
)

func runMemories(cmd *cobra.Command, _ []string) {
	databaseURL := viper.GetString("database_url")
	if databaseURL == "" {
		logger.Fatal("database_url is not configured")
	}

	ctx := context.Background()
	store, err := memory.NewPostgresStore(ctx, databaseURL)
	if err != nil {
		logger.Fatal("failed to open memory store", "error", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		logger.Fatal("failed to list memories", "error", err)
	}

	if len(entries) == 0 {
		fmt.Println("No memories stored.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Memory", "Metadata"})
	table.SetBorder(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
	})

	for _, e := range entries {
		text := e.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		var meta []string
		for k, v := range e.Metadata {
			meta = append(meta, k+"="+v)
		}
		table.Append([]string{e.ID, text, strings.Join(meta, " ")})
	}
	table.Render()
}

func init() {
	memoriesCmd.Flags().IntP("limit", "n", 20, "How many memories to show")
}
