package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
	"github.com/tonyzinh/system-hospital-backend/pkg/orchestrator"
)

var searchOnly bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the model, or with the corpus using --search",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&searchOnly, "search", false, "Answer from corpus excerpts without calling the model")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	color.Cyan("\nChat with the hospital assistant (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	var history []models.Message
	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if strings.ToLower(question) == "exit" {
			break
		}
		if question == "" {
			continue
		}

		if searchOnly {
			spinner := getSpinner("🔍 Searching corpus...")
			answer, err := a.synthesizer.Synthesize(ctx, question)
			spinner.Finish()
			fmt.Print("\r")
			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			assistantPrompt("Assistant: %s\n", answer)
			continue
		}

		spinner := getSpinner("🤖 Generating response...")
		answer, err := a.orchestrator.Complete(ctx, orchestrator.Request{
			Question: question,
			History:  history,
		})
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}
		history = append(history,
			models.Message{Role: models.RoleUser, Content: question},
			models.Message{Role: models.RoleAssistant, Content: answer},
		)
		assistantPrompt("Assistant: %s\n", answer)
	}
	return scanner.Err()
}
