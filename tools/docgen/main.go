// Package main generates developer reference docs: a markdown tree for
// the pwctl command set and, on request, the OpenAPI document for the
// HTTP API rendered outside a running server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra/doc"

	"pricewatch/cmd/pwctl/cmd"
	"pricewatch/internal/api/handlers"
)

func main() {
	output := flag.String("output", "docs/cli", "output directory for generated markdown")
	openapiFile := flag.String("openapi", "", "also write the OpenAPI document here (.json or .yaml)")
	flag.Parse()

	if err := os.MkdirAll(*output, 0o750); err != nil {
		log.Fatalf("creating output directory: %v", err)
	}

	root := cmd.Root()
	root.DisableAutoGenTag = true

	if err := doc.GenMarkdownTree(root, *output); err != nil {
		log.Fatalf("generating docs: %v", err)
	}

	fmt.Printf("CLI docs generated in %s/\n", *output)

	if *openapiFile == "" {
		return
	}
	if err := writeOpenAPI(*openapiFile); err != nil {
		log.Fatalf("writing OpenAPI document: %v", err)
	}
	fmt.Printf("OpenAPI document written to %s\n", *openapiFile)
}

// writeOpenAPI renders the API document from the route registry alone.
// Handlers are constructed with nil providers; registration only reads
// their operation metadata, no request is ever dispatched.
func writeOpenAPI(path string) error {
	api := humaecho.New(echo.New(), huma.DefaultConfig("pricewatch", "dev"))
	handlers.RegisterProductRoutes(api, handlers.NewProductsHandler(nil))
	handlers.RegisterRetailerRoutes(api, handlers.NewRetailersHandler(nil))
	handlers.RegisterRuleRoutes(api, handlers.NewRulesHandler(nil))
	handlers.RegisterEventRoutes(api, handlers.NewEventsHandler(nil))
	handlers.RegisterQueueRoutes(api, handlers.NewQueueHandler(nil))
	handlers.RegisterJobRoutes(api, handlers.NewJobsHandler(nil))
	handlers.RegisterAnalyticsRoutes(api, handlers.NewAnalyticsHandler(nil))
	handlers.RegisterTriggerRoutes(api, handlers.NewTriggerHandler(nil))

	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = api.OpenAPI().YAML()
	} else {
		data, err = json.MarshalIndent(api.OpenAPI(), "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
