package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var employeeCmd = &cobra.Command{
	Use:     "employee",
	Aliases: []string{"employees"},
	Short:   "Employee directory commands",
}

var employeeUpsertCmd = &cobra.Command{
	Use:   "upsert <emp-code>",
	Short: "Create or update an employee",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmployeeUpsert,
}

var employeeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List employees",
	RunE:  runEmployeeList,
}

var employeeShowCmd = &cobra.Command{
	Use:   "show <emp-code>",
	Short: "Show one employee",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmployeeShow,
}

var employeePhotoCmd = &cobra.Command{
	Use:   "photo <emp-code> <image-file>",
	Short: "Store an employee's reference photo",
	Long: `Store a reference photo in the image directory as <emp-code>.jpg. Any
other reference photo of the same employee is removed. Run "index build"
or wait for the terminal to pick up the change.`,
	Args: cobra.ExactArgs(2),
	RunE: runEmployeePhoto,
}

func init() {
	rootCmd.AddCommand(employeeCmd)
	employeeCmd.AddCommand(employeeUpsertCmd, employeeListCmd, employeeShowCmd, employeePhotoCmd)

	employeeUpsertCmd.Flags().String("name", "", "Full name (required)")
	employeeUpsertCmd.Flags().String("bid", "", "Badge ID")
	employeeUpsertCmd.Flags().String("phone", "", "Phone number")
	employeeUpsertCmd.Flags().String("email", "", "Email address")
	employeeUpsertCmd.Flags().String("photo-url", "", "Remote profile photo URL")

	employeeListCmd.Flags().String("q", "", "Filter by code or name")
	employeeListCmd.Flags().Bool("json", false, "Output as JSON")

	employeeShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEmployeeUpsert(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	created, err := a.directory.Upsert(context.Background(), database.Employee{
		EmpCode:      args[0],
		FullName:     mustGetString(cmd, "name"),
		EmpBID:       mustGetString(cmd, "bid"),
		Phone:        mustGetString(cmd, "phone"),
		Email:        mustGetString(cmd, "email"),
		ProfilePhoto: mustGetString(cmd, "photo-url"),
	})
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created employee %s\n", args[0])
	} else {
		fmt.Printf("Updated employee %s\n", args[0])
	}
	return nil
}

func runEmployeeList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	emps, err := a.directory.Search(context.Background(), mustGetString(cmd, "q"))
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(emps)
	}

	fmt.Printf("Employees: %d\n\n", len(emps))
	for _, e := range emps {
		photo := ""
		if e.ProfileImageLocal != "" {
			photo = "  [photo]"
		}
		fmt.Printf("  %-10s %-28s %s%s\n", e.EmpCode, e.FullName, e.EmpBID, photo)
	}
	return nil
}

func runEmployeeShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.directory.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("employee %s: %w", args[0], err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(e)
	}
	fmt.Printf("Code:       %s\n", e.EmpCode)
	fmt.Printf("Name:       %s\n", e.FullName)
	fmt.Printf("Badge ID:   %s\n", e.EmpBID)
	fmt.Printf("Phone:      %s\n", e.Phone)
	fmt.Printf("Email:      %s\n", e.Email)
	fmt.Printf("Photo:      %s\n", e.ProfileImageLocal)
	fmt.Printf("Updated:    %s\n", e.UpdatedAt)
	return nil
}

func runEmployeePhoto(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	path, err := a.directory.SaveReferenceImage(context.Background(), args[0], data)
	if err != nil {
		return err
	}
	fmt.Printf("Saved reference photo %s\n", path)
	return nil
}
