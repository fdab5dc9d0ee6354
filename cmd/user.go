package cmd

import (
	"fmt"
	"time"

	"teamdrive/repositories"
	"teamdrive/services"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddEmail string

var userAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Register a user",
	Example: `  teamdrive user add --email alice@example.com`,
	RunE:    runUserAdd,
}

var tokenUserID uint

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Mint a bearer token for a user",
	Example: `  teamdrive token --user 1`,
	RunE:    runToken,
}

func init() {
	userAddCmd.Flags().StringVar(&userAddEmail, "email", "", "email address of the new user")
	_ = userAddCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userAddCmd)

	tokenCmd.Flags().UintVar(&tokenUserID, "user", 0, "id of the user the token is issued to")
	_ = tokenCmd.MarkFlagRequired("user")
}

// userService only needs the database, so it skips the object store wiring.
func userService(a *app) services.UserService {
	users := repositories.NewGormUserRepository(a.db)
	return services.NewUserService(users, a.cfg.JWT.Secret, time.Duration(a.cfg.JWT.ExpireHours)*time.Hour)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	a, err := openDatabase()
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := userService(a).Register(cmd.Context(), userAddEmail)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Email)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	a, err := openDatabase()
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := userService(a).IssueToken(cmd.Context(), tokenUserID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Token)
	return nil
}
