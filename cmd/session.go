package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the stored directory-service login",
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save <token>",
	Short: "Store a login token, replacing any previous one",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionSave,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored login",
	RunE:  runSessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored login",
	RunE:  runSessionClear,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionSaveCmd, sessionShowCmd, sessionClearCmd)

	sessionSaveCmd.Flags().String("employee-id", "", "Directory employee ID")
	sessionSaveCmd.Flags().String("name", "", "Display name")
	sessionSaveCmd.Flags().String("email", "", "Email address")
}

func runSessionSave(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.directory.SaveSession(context.Background(), args[0],
		mustGetString(cmd, "employee-id"), mustGetString(cmd, "name"), mustGetString(cmd, "email"))
	if err != nil {
		return err
	}
	fmt.Printf("Session saved for %s\n", s.Name)
	if s.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", s.ExpiresAt.In(a.loc).Format(database.TimestampLayout))
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.directory.Session(context.Background())
	if errors.Is(err, database.ErrNotFound) {
		fmt.Println("No active session")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Employee ID:  %s\n", s.EmployeeID)
	fmt.Printf("Name:         %s\n", s.Name)
	fmt.Printf("Email:        %s\n", s.Email)
	fmt.Printf("Saved:        %s\n", s.UpdatedAt)
	if s.ExpiresAt != nil {
		fmt.Printf("Expires:      %s\n", s.ExpiresAt.In(a.loc).Format(database.TimestampLayout))
	}
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.directory.ClearSession(context.Background()); err != nil {
		return err
	}
	fmt.Println("Session cleared")
	return nil
}
