// Command aura-sign is a developer convenience CLI: it generates an
// Ed25519 DID keypair, signs a sample /v1/negotiate body, and prints
// ready-to-curl headers. Grounded on the teacher's cmd/sign-order,
// generalized from EIP-712 order signing to this service's
// METHOD+PATH+TIMESTAMP+BODY_HASH scheme.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/auranet/aura-core/pkg/crypto"
)

const (
	sampleMethod = "POST"
	samplePath   = "/v1/negotiate"
)

func main() {
	fmt.Println("Generating new Ed25519 DID keypair...")
	signer, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("DID: %s\n", signer.DID())
	fmt.Printf("Private Key (hex, KEEP SECRET): %s\n\n", signer.PrivateKeyHex())

	body := map[string]any{
		"item_id":    "suite-ocean-view",
		"bid_amount": 380.0,
		"currency":   "USD",
		"agent_did":  signer.DID(),
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		fmt.Printf("Error marshaling body: %v\n", err)
		os.Exit(1)
	}

	sum := sha256.Sum256(bodyJSON)
	bodyHash := hex.EncodeToString(sum[:])
	timestamp := time.Now().Unix()

	signature := signer.SignRequest(sampleMethod, samplePath, timestamp, bodyHash)

	fmt.Println("Sample request body:")
	fmt.Println(string(bodyJSON))
	fmt.Println()

	fmt.Println("curl -s -X POST http://localhost:8080" + samplePath + ` \`)
	fmt.Printf("  -H 'Content-Type: application/json' \\\n")
	fmt.Printf("  -H 'X-Agent-ID: %s' \\\n", signer.DID())
	fmt.Printf("  -H 'X-Timestamp: %d' \\\n", timestamp)
	fmt.Printf("  -H 'X-Signature: %s' \\\n", signature)
	fmt.Printf("  -d '%s'\n", string(bodyJSON))
}
