package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/exp/rand"

	"github.com/rafnixschaf/iota-sub000/config"
	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/dlog"
	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/quorum"
	"github.com/rafnixschaf/iota-sub000/signer"
	"github.com/rafnixschaf/iota-sub000/sigstore"
	"github.com/rafnixschaf/iota-sub000/types"
	"github.com/rafnixschaf/iota-sub000/utils"
	"github.com/rafnixschaf/iota-sub000/verifier"
)

var (
	configPath = flag.String("config", "bridge.yaml", "path of the node configuration")
	mode       = flag.String("mode", "digest", "digest, sign, shuffle or certify")
	actionPath = flag.String("action", "", "JSON file holding a bridge action")
	seed       = flag.Uint64("seed", 0, "shuffle seed, 0 picks one from the clock")
)

type certificate struct {
	Action     json.RawMessage                                       `json:"action"`
	Digest     message.ActionDigest                                  `json:"digest"`
	Weight     uint64                                                `json:"weight"`
	Signatures map[crypto.PublicKeyBytes]crypto.RecoverableSignature `json:"signatures"`
}

func readAction() (message.BridgeAction, error) {
	if *actionPath == "" {
		return nil, errors.New("-action is required")
	}
	bz, err := os.ReadFile(*actionPath)
	if err != nil {
		return nil, err
	}
	return message.UnmarshalJSONAction(bz)
}

func openStore(ctx context.Context, path string) (*sigstore.Store, error) {
	var store *sigstore.Store
	// another bridgectl may still hold the leveldb lock
	err := utils.Retry(ctx, 5, 200*time.Millisecond, func() error {
		s, err := sigstore.Open(path)
		store = s
		return err
	})
	return store, err
}

func runDigest() error {
	action, err := readAction()
	if err != nil {
		return err
	}
	bz, err := message.ToBytes(action)
	if err != nil {
		return err
	}
	digest, err := message.Digest(action)
	if err != nil {
		return err
	}
	fmt.Printf("key:     %v\n", message.Key(action))
	fmt.Printf("bytes:   %s\n", hex.EncodeToString(bz))
	fmt.Printf("digest:  %s\n", digest.Hex())
	fmt.Printf("governance: %v\n", message.IsGovernanceAction(action))
	switch a := action.(type) {
	case message.LimitUpdateAction:
		fmt.Printf("usd limit: %s\n", types.FormatUSD(a.NewUSDLimit))
	case message.AssetPriceUpdateAction:
		fmt.Printf("usd price: %s\n", types.FormatUSD(a.NewUSDPrice))
	}
	return nil
}

func runSign(ctx context.Context, cfg config.Config, audit *dlog.AuditLogger) error {
	action, err := readAction()
	if err != nil {
		return err
	}
	if !message.IsGovernanceAction(action) {
		return fmt.Errorf("%w: transfers are signed by the bridge node after chain verification", verifier.ErrNotGovernanceAction)
	}
	kp, err := crypto.LoadKeyPair(cfg.KeystoreFile, cfg.KeystorePassword())
	if err != nil {
		return err
	}
	approved, err := cfg.GovernanceActions()
	if err != nil {
		return err
	}
	gv, err := verifier.NewGovernanceVerifier(approved)
	if err != nil {
		return err
	}
	signed, err := signer.SignGovernance(ctx, signer.New[message.ActionDigest](kp, gv, audit), action)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.SignatureDB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.PutSignature(signed); err != nil {
		return err
	}
	fmt.Printf("%s signed by %s: %s\n", message.Key(action), signed.Auth.AuthorityPubKey, signed.Auth.Signature.Hex())
	return nil
}

func runShuffle(cfg config.Config) error {
	c, err := cfg.BuildCommittee()
	if err != nil {
		return err
	}
	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	for i, id := range c.Shuffle(nil, nil, rand.New(rand.NewSource(s))) {
		m, _ := c.Member(id)
		fmt.Printf("%2d %s weight=%d url=%s\n", i, id, m.VotingPower, m.BaseURL)
	}
	return nil
}

func runCertify(ctx context.Context, cfg config.Config, audit *dlog.AuditLogger) error {
	action, err := readAction()
	if err != nil {
		return err
	}
	c, err := cfg.BuildCommittee()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg.SignatureDB)
	if err != nil {
		return err
	}
	defer store.Close()

	digest, err := message.Digest(action)
	if err != nil {
		return err
	}
	sigs, err := store.Signatures(digest)
	if err != nil {
		return err
	}
	for pk, sig := range sigs {
		if err := crypto.VerifyRecoverable(pk, sig, digest); err != nil {
			audit.SignatureRejected(digest, pk, err)
		}
	}

	cert, err := quorum.Accumulate(c, action, sigs, cfg.QuorumThreshold)
	var short *quorum.InsufficientStakeError
	if errors.As(err, &short) {
		audit.QuorumNotMet(action, digest, short.Have, short.Need)
	}
	if err != nil {
		return err
	}
	audit.ActionCertified(action, digest, cert.Auth.Weight, len(cert.Signers(c)))

	raw, err := message.MarshalJSONAction(action)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(certificate{
		Action:     raw,
		Digest:     cert.Digest(),
		Weight:     cert.Auth.Weight,
		Signatures: cert.Auth.Signatures,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	flag.Parse()

	if *mode == "digest" {
		if err := runDigest(); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := config.Setup(*configPath); err != nil {
		log.Fatal(err)
	}
	cfg := config.GetConfig()
	log.Setup(cfg.LogLevel, cfg.LogJSON, nil)

	audit := dlog.NewAuditLogger(cfg.NatsAddress, cfg.NodeID)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	switch *mode {
	case "sign":
		err = runSign(ctx, cfg, audit)
	case "shuffle":
		err = runShuffle(cfg)
	case "certify":
		err = runCertify(ctx, cfg, audit)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if cerr := audit.Close(ctx); cerr != nil {
		log.Warningf("audit flush: %v", cerr)
	}
	if err != nil {
		log.Fatal(err)
	}
}
