package command

import (
	"fmt"
	"io"
	"strings"
)

// CompletionCommand prints a completion script for bash, zsh, fish or
// PowerShell. The command list comes from the registry at execution time.
type CompletionCommand struct {
	*BaseCommand
	registry *Registry
}

func NewCompletionCommand(registry *Registry) *CompletionCommand {
	return &CompletionCommand{
		BaseCommand: NewBaseCommand(
			"completion",
			"Generate shell completion scripts",
			"completion [shell]",
		),
		registry: registry,
	}
}

func (c *CompletionCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "Too many arguments: %v\n", args[1:])
		_, _ = fmt.Fprintln(stderr, "Usage: arbiter completion [shell]")
		return fmt.Errorf("too many arguments")
	}

	shell := "bash"
	if len(args) > 0 {
		shell = strings.ToLower(args[0])
	}

	commands := c.registry.List()
	switch shell {
	case "bash":
		return writeScript(stdout, bashCompletion, strings.Join(commands, " "))
	case "zsh":
		return writeScript(stdout, zshCompletion, strings.Join(commands, " "))
	case "fish":
		return writeScript(stdout, fishCompletion, strings.Join(commands, " "))
	case "powershell", "pwsh":
		quoted := make([]string, len(commands))
		for i, name := range commands {
			quoted[i] = "'" + name + "'"
		}
		return writeScript(stdout, powershellCompletion, strings.Join(quoted, ", "))
	default:
		_, _ = fmt.Fprintf(stderr, "Unsupported shell: %s\n", shell)
		_, _ = fmt.Fprintln(stderr, "Supported shells: bash, zsh, fish, powershell")
		return fmt.Errorf("unsupported shell: %s", shell)
	}
}

func writeScript(w io.Writer, format, commands string) error {
	_, err := fmt.Fprintf(w, format, commands)
	return err
}

const bashCompletion = `#!/bin/bash
# Bash completion script for arbiter

_arbiter_completion() {
    local cur prev commands
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    commands="%s"

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=($(compgen -W "${commands}" -- ${cur}))
        return 0
    fi

    case "${prev}" in
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish powershell" -- ${cur}))
            return 0
            ;;
        help)
            COMPREPLY=($(compgen -W "${commands}" -- ${cur}))
            return 0
            ;;
        config)
            COMPREPLY=($(compgen -W "validate schema path --global --all --section" -- ${cur}))
            return 0
            ;;
        --section|-section)
            COMPREPLY=($(compgen -W "run watch" -- ${cur}))
            return 0
            ;;
        log)
            COMPREPLY=($(compgen -W "tail --follow -n --file --level --unit --raw" -- ${cur}))
            return 0
            ;;
        --file|-file)
            COMPREPLY=($(compgen -f -X '!*.@(yaml|yml)' -- ${cur}))
            return 0
            ;;
        --log-level|-log-level|--level|-level)
            COMPREPLY=($(compgen -W "debug info warn error" -- ${cur}))
            return 0
            ;;
        *)
            COMPREPLY=($(compgen -f -- ${cur}))
            return 0
            ;;
    esac
}

complete -F _arbiter_completion arbiter

# To install: source <(arbiter completion bash)
`

const zshCompletion = `#compdef arbiter
# Zsh completion script for arbiter

_arbiter() {
    local -a commands
    commands=(%s)

    if (( CURRENT == 2 )); then
        _describe 'command' commands
        return
    fi

    case "${words[2]}" in
        completion)
            _values 'shell' bash zsh fish powershell
            ;;
        help)
            _describe 'command' commands
            ;;
        run|watch|validate|triggers)
            _arguments \
                '--file[behavior definitions file]:file:_files -g "*.(yaml|yml)"' \
                '--log-level[log level]:level:(debug info warn error)' \
                '*:file:_files'
            ;;
        log)
            _arguments \
                '--follow[follow the log file]' \
                '-n[records to show]:count:' \
                '--file[log file]:file:_files' \
                '--level[minimum level]:level:(debug info warn error)' \
                '--unit[only records about this unit]:unit:' \
                '--raw[print records as JSON]'
            ;;
        config)
            _values 'subcommand' validate schema path
            ;;
        *)
            _files
            ;;
    esac
}

compdef _arbiter arbiter

# To install: source <(arbiter completion zsh)
`

const fishCompletion = `# Fish completion script for arbiter

set -l arbiter_commands %s

complete -c arbiter -f -n "not __fish_seen_subcommand_from $arbiter_commands" -a "$arbiter_commands"
complete -c arbiter -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish powershell"
complete -c arbiter -f -n "__fish_seen_subcommand_from help" -a "$arbiter_commands"
complete -c arbiter -n "__fish_seen_subcommand_from run watch validate triggers" -l file -r -F
complete -c arbiter -f -n "__fish_seen_subcommand_from run watch" -l log-level -a "debug info warn error"
complete -c arbiter -f -n "__fish_seen_subcommand_from config" -a "validate schema path"
complete -c arbiter -f -n "__fish_seen_subcommand_from log" -l level -a "debug info warn error"
complete -c arbiter -f -n "__fish_seen_subcommand_from log" -l follow

# To install: arbiter completion fish > ~/.config/fish/completions/arbiter.fish
`

const powershellCompletion = `# PowerShell completion script for arbiter

Register-ArgumentCompleter -Native -CommandName arbiter -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $commands = @(%s)
    $elements = $commandAst.CommandElements

    if ($elements.Count -le 2) {
        $commands | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
            [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
        }
        return
    }

    switch ($elements[1].Value) {
        'completion' {
            @('bash', 'zsh', 'fish', 'powershell') | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
        }
        'config' {
            @('validate', 'schema', 'path') | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
        }
        'help' {
            $commands | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
        }
    }
}

# To install: arbiter completion powershell | Out-String | Invoke-Expression
`
