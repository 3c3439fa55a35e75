package main

import (
	"fmt"
	"io"

	"github.com/BaSui01/agentorch/workflow"
)

// validateCommand 校验一个或多个工作流定义文件
func validateCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "validate: at least one workflow file is required")
		return exitUsage
	}

	code := exitOK
	for _, path := range args {
		def, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			code = exitFailure
			continue
		}
		fmt.Fprintf(stdout, "%s: ok (workflow %q, %d nodes)\n", path, def.ID, len(def.Nodes))
	}
	return code
}
