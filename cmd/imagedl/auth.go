package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"imagedl/pkg/auth"
)

// authCmd groups the credential management subcommands.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored platform credentials",
	Long: `Manage stored platform credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (IMAGEDL_<PLATFORM>_USERNAME / _PASSWORD)

Never share your credentials or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [platform]",
	Short: "Store credentials for a platform",
	Long: `Store login credentials for a platform in the system keychain or an
encrypted file. Stored credentials are used automatically on runs that
need a logged-in session, unless --username overrides them.`,
	Example: `  # Interactive login
  imagedl auth login

  # Login for a specific platform
  imagedl auth login instagram`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [platform]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials for a platform.

If no platform is provided, you will be shown a list of stored accounts
to choose from.`,
	Example: `  # Interactive logout
  imagedl auth logout

  # Logout a specific platform
  imagedl auth logout instagram`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored accounts",
	Long:  `List all stored accounts with masked credential information.`,
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize credential manager: %v\n", err)
		os.Exit(exitFailure)
	}

	var platform string
	if len(args) > 0 {
		platform = strings.ToLower(args[0])
	}

	reader := bufio.NewReader(os.Stdin)

	if platform == "" {
		fmt.Print("Platform (e.g. instagram): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read platform: %v\n", err)
			os.Exit(exitFailure)
		}
		platform = strings.ToLower(strings.TrimSpace(input))
	}
	if platform == "" {
		fmt.Fprintln(os.Stderr, "platform is required")
		os.Exit(exitUsageError)
	}

	if existing, _ := manager.Retrieve(platform); existing != nil {
		fmt.Printf("Credentials for %q already exist (user %s). Update? (y/N): ",
			platform, existing.Username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Printf("Username for %s: ", platform)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read username: %v\n", err)
		os.Exit(exitFailure)
	}
	user := strings.TrimSpace(input)
	if user == "" {
		fmt.Fprintln(os.Stderr, "username is required")
		os.Exit(exitUsageError)
	}

	pass, err := promptPassword(fmt.Sprintf("Password for %s: ", user))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
		os.Exit(exitFailure)
	}
	if pass == "" {
		fmt.Fprintln(os.Stderr, "password is required")
		os.Exit(exitUsageError)
	}

	account := &auth.Account{
		Platform: platform,
		Username: user,
		Password: pass,
	}
	if err := manager.Store(account); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store credentials: %v\n", err)
		os.Exit(exitFailure)
	}

	fmt.Printf("Credentials stored for %s (%s)\n", platform, user)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize credential manager: %v\n", err)
		os.Exit(exitFailure)
	}

	if len(args) > 0 {
		platform := strings.ToLower(args[0])
		if err := manager.Delete(platform); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove credentials: %v\n", err)
			os.Exit(exitFailure)
		}
		fmt.Printf("Credentials removed for %s\n", platform)
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Println("No stored accounts.")
		return
	}

	fmt.Println("Select platform to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s (%s)\n", i+1, account.Platform, account.Username)
	}
	fmt.Println("  0. Cancel")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	if choice < 1 || choice > len(accounts) {
		return
	}

	account := accounts[choice-1]
	if err := manager.Delete(account.Platform); err != nil {
		fmt.Fprintf(os.Stderr, "failed to remove credentials: %v\n", err)
		os.Exit(exitFailure)
	}
	fmt.Printf("Credentials removed for %s\n", account.Platform)
}

func runStatus(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize credential manager: %v\n", err)
		os.Exit(exitFailure)
	}

	accounts, err := manager.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list accounts: %v\n", err)
		os.Exit(exitFailure)
	}
	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Use 'imagedl auth login' to add one.")
		return
	}

	fmt.Println("Stored accounts:")
	fmt.Println()
	for _, account := range accounts {
		fmt.Printf("  Platform: %s\n", account.Platform)
		fmt.Printf("  Username: %s\n", account.Username)
		fmt.Printf("  Password: %s\n", auth.MaskPassword(account.Password))
		fmt.Printf("  Last Modified: %s\n", account.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// promptPassword reads a password from stdin without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback for piped input.
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
