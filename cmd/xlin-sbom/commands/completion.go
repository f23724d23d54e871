package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script",
	Long: `To load completions:

Bash:
  $ source <(xlin-sbom completion bash)

  # To load completions for each session, execute once:
  $ xlin-sbom completion bash > /etc/bash_completion.d/xlin-sbom

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:

  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ xlin-sbom completion zsh > "${fpath[1]}/_xlin-sbom"

Fish:
  $ xlin-sbom completion fish | source

  # To load completions for each session, execute once:
  $ xlin-sbom completion fish > ~/.config/fish/completions/xlin-sbom.fish
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			fmt.Print(humanBashCompletion)
		case "zsh":
			rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			rootCmd.GenPowerShellCompletion(os.Stdout)
		}
	},
}

// humanBashCompletion is a handcrafted, minimal bash completion script
// that avoids the robotic verbosity of auto-generated ones.
const humanBashCompletion = `
# xlin-sbom bash completion

_xlin_sbom_completion() {
    local cur prev opts
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    opts="validate completion help"

    case "${prev}" in
        --iso|-i|--package|-p|--sbom|--rules|--license-aliases)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        --output|-o|--mount-root)
            COMPREPLY=( $(compgen -d -- ${cur}) )
            return 0
            ;;
        validate)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish powershell" -- ${cur}) )
            return 0
            ;;
        *)
            ;;
    esac

    # Flags
    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--iso --package --output --sbom --mount-root --max-workers --rules --license-aliases --disable-tqdm --strict --json-logs --verbose --help --version" -- ${cur}) )
        return 0
    fi

    # Subcommands
    COMPREPLY=( $(compgen -W "${opts}" -- ${cur}) )
}

complete -F _xlin_sbom_completion xlin-sbom
`
