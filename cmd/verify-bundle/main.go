package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/ProvChain-Network/provenance_layer/internal/app/services/bundles"
)

// Verifies a published bundle document offline: the entries hash, the
// content-derived bundle identifier and the creator signature must all
// check out without contacting the gateway.
func main() {
	bundleURI := flag.String("bundle", "", "Bundle URI (file:///path or https://...) containing the bundle document")
	expectedID := flag.String("expected-id", "", "Optional expected bundle identifier to compare against")
	flag.Parse()

	if *bundleURI == "" {
		flag.Usage()
		os.Exit(1)
	}

	data, err := fetch(*bundleURI)
	if err != nil {
		log.Fatalf("fetch bundle: %v", err)
	}

	bundle, err := bundles.ParseBundle(data)
	if err != nil {
		log.Fatalf("parse bundle: %v", err)
	}
	if err := bundles.ValidateBundle(bundle); err != nil {
		log.Fatalf("bundle invalid: %v", err)
	}
	if *expectedID != "" && !strings.EqualFold(bundle.BundleID, *expectedID) {
		log.Fatalf("bundle id mismatch: got %s want %s", bundle.BundleID, *expectedID)
	}

	fmt.Printf("Bundle OK. ID=%s CreatedBy=%s Entries=%d\n",
		bundle.BundleID, bundle.Content.IDData.CreatedBy, len(bundle.Content.Entries))
}

func fetch(uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "file://") {
		path := strings.TrimPrefix(uri, "file://")
		return os.ReadFile(path)
	}
	resp, err := http.Get(uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
