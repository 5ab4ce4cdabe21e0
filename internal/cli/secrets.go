package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/minifly/minifly/internal/deploy"
	"github.com/spf13/cobra"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the local .fly.secrets file for an app",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set KEY=VALUE [KEY=VALUE...]",
	Short: "Set one or more secrets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSecretsSet,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret keys (values are never printed)",
	RunE:  runSecretsList,
}

var secretsRemoveCmd = &cobra.Command{
	Use:   "remove KEY [KEY...]",
	Short: "Remove one or more secrets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSecretsRemove,
}

func init() {
	secretsCmd.PersistentFlags().String("app-dir", ".", "directory containing .fly.secrets")
	secretsCmd.AddCommand(secretsSetCmd, secretsListCmd, secretsRemoveCmd)
}

// secretsFilePath resolves the shared .fly.secrets file under
// --app-dir. Per-app override files (.fly.secrets.<app>) are read for
// deploy but this subcommand manages the default shared file, matching
// original_source/minifly-cli/src/commands/secrets.rs's single-file
// set/list/remove surface.
func secretsFilePath(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("app-dir")
	return filepath.Join(dir, ".fly.secrets")
}

func readExistingSecrets(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return deploy.ParseSecrets(string(content))
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	path := secretsFilePath(cmd)
	secrets, err := readExistingSecrets(path)
	if err != nil {
		return err
	}

	for _, arg := range args {
		key, value, ok := splitKeyValue(arg)
		if !ok {
			return fmt.Errorf("invalid argument %q: expected KEY=VALUE", arg)
		}
		secrets[key] = value
	}

	if err := os.WriteFile(path, []byte(deploy.FormatSecretsFile(secrets)), 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %d secret(s) to %s\n", len(secrets), path)
	return nil
}

func runSecretsList(cmd *cobra.Command, args []string) error {
	secrets, err := readExistingSecrets(secretsFilePath(cmd))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runSecretsRemove(cmd *cobra.Command, args []string) error {
	path := secretsFilePath(cmd)
	secrets, err := readExistingSecrets(path)
	if err != nil {
		return err
	}
	for _, key := range args {
		delete(secrets, key)
	}
	if err := os.WriteFile(path, []byte(deploy.FormatSecretsFile(secrets)), 0o600); err != nil {
		return err
	}
	fmt.Printf("removed %d secret(s), %d remain\n", len(args), len(secrets))
	return nil
}

func splitKeyValue(arg string) (string, string, bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:], true
		}
	}
	return "", "", false
}
