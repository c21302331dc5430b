package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

// maxPrompts bounds how often delete_database asks before giving up.
const maxPrompts = 10

const question = "Please type 'y' for Yes or 'n' for No"

type answer int

const (
	answerNone answer = iota // no valid answer
	answerYes
	answerNo
)

// Confirm asks up to max times for "y" or "n". Anything else is asked
// again; running out of input or attempts yields answerNone.
func Confirm(ask func(string) (string, bool), max int) answer {
	for i := 0; i < max; i++ {
		in, ok := ask(question)
		if !ok {
			break
		}
		switch strings.TrimSpace(in) {
		case "y":
			return answerYes
		case "n":
			return answerNo
		}
	}
	return answerNone
}

func (a *App) prompter() func(string) (string, bool) {
	if a.Prompt != nil {
		return a.Prompt
	}
	if f, ok := a.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return func(q string) (string, bool) {
			return prompt.Input(q+" ", yesNo), true
		}
	}

	scanner := bufio.NewScanner(a.Stdin)
	return func(q string) (string, bool) {
		fmt.Fprintln(a.Stdout, q)
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}
}

func yesNo(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "y", Description: "delete the database"},
		{Text: "n", Description: "keep it"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}
