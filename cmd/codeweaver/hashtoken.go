package main

import (
	"fmt"

	"github.com/rooney011/CodeWeaver/internal/auth"
	"github.com/spf13/cobra"
)

func runHashToken(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		generated, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		token = generated
		fmt.Fprintf(out, "token: %s\n", token)
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "hash:  %s\n", hash)
	return nil
}
