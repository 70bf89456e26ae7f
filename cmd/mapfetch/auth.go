package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"mapfetch/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Mapillary access tokens",
	Long: `Manage stored Mapillary access tokens securely.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your access token or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a Mapillary access token securely",
	Long: `Store a Mapillary access token in the system keychain or an
encrypted file.

You will be prompted for:
  - A profile name (if not provided; "default" is used when empty)
  - The access token (hidden as you type)

To get a token, create an application at https://www.mapillary.com/dashboard/developers
and copy its client access token.`,
	Example: `  # Interactive login
  mapfetch auth login

  # Login under a named profile
  mapfetch auth login work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored access token",
	Long: `Remove a stored Mapillary access token.

If no profile is provided and exactly one profile is stored, that
profile is removed after confirmation.`,
	Example: `  # Interactive logout
  mapfetch auth logout

  # Logout a specific profile
  mapfetch auth logout work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored token profiles",
	Long:  `Show all stored token profiles with the token values masked.`,
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
		fmt.Fprintln(os.Stderr, "Failed to initialize token manager:", err)
		os.Exit(1)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if name == "" {
		fmt.Print("Profile name (press Enter for \"default\"): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to read profile name:", err)
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
		if name == "" {
			name = "default"
		}
	}

	// Check if profile already exists
	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile '%s' already exists. Update the token? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Print("Access token (hidden as you type): ")
	token, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read token:", err)
		os.Exit(1)
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "Access token is required")
		os.Exit(1)
	}

	profile := &auth.Profile{
		Name:         name,
		AccessToken:  token,
		LastModified: time.Now(),
	}

	if err := manager.Store(profile); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to store token:", err)
		os.Exit(1)
	}

	fmt.Printf("Token stored for profile '%s'\n", name)

	fmt.Println("\nYour token is encrypted and stored in:")
	if auth.IsKeyringAvailable() {
		fmt.Println("  - System keychain (primary)")
	}
	fmt.Println("  - Encrypted file (backup)")

	fmt.Println("\nStart downloading with:")
	fmt.Println("  mapfetch fetch")
	if name != "default" {
		fmt.Printf("  mapfetch fetch --profile %s\n", name)
	}
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize token manager:", err)
		os.Exit(1)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		profiles, err := manager.List()
		if err != nil || len(profiles) == 0 {
			fmt.Println("No stored profiles found")
			return
		}

		if len(profiles) == 1 {
			name = profiles[0].Name
			reader := bufio.NewReader(os.Stdin)
			fmt.Printf("Remove profile '%s'? (y/N): ", name)
			input, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
				return
			}
		} else {
			fmt.Println("Select profile to remove:")
			for i, profile := range profiles {
				fmt.Printf("  %d. %s\n", i+1, profile.Name)
			}
			fmt.Printf("  0. Cancel\n\n")

			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Choice: ")
			input, _ := reader.ReadString('\n')

			var choice int
			fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

			if choice < 1 || choice > len(profiles) {
				return
			}
			name = profiles[choice-1].Name
		}
	}

	if err := manager.Delete(name); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to remove profile:", err)
		os.Exit(1)
	}
	fmt.Println("Profile removed:", name)
}

func runStatus(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize token manager:", err)
		os.Exit(1)
	}

	profiles, err := manager.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to list profiles:", err)
		os.Exit(1)
	}

	if len(profiles) == 0 {
		fmt.Println("No stored profiles. Use 'mapfetch auth login' to add one.")
		if os.Getenv("MAPFETCH_ACCESS_TOKEN") != "" || os.Getenv("MAPILLARY_TOKEN") != "" {
			fmt.Println("An access token is set in the environment.")
		}
		return
	}

	fmt.Println("Stored profiles:")
	fmt.Println()
	for i, profile := range profiles {
		sanitized := auth.SanitizeProfile(profile)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Token: %s\n", sanitized.AccessToken)
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a token from stdin without echoing
func readPassword() (string, error) {
	// Try to read without echo
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // New line after password
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
