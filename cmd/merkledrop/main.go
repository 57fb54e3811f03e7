package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/openbloc/merkledrop-go/pkg/airdrop"
	"github.com/openbloc/merkledrop-go/pkg/config"
	ledgermemory "github.com/openbloc/merkledrop-go/pkg/ledger/memory"
	"github.com/openbloc/merkledrop-go/pkg/logger"
	"github.com/openbloc/merkledrop-go/pkg/merkle"
	"github.com/openbloc/merkledrop-go/pkg/store"
	badgerstore "github.com/openbloc/merkledrop-go/pkg/store/badger"
	memorystore "github.com/openbloc/merkledrop-go/pkg/store/memory"
	redisstore "github.com/openbloc/merkledrop-go/pkg/store/redis"
	"github.com/openbloc/merkledrop-go/pkg/types"
)

// ledgerStateFlag is carried by every command that reads or mutates ledger
// state, so distributions created by init are visible to list, sent, claim
// and revoke in later invocations. Pair it with a durable store backend;
// the memory store forgets its tree blobs when the process exits.
func ledgerStateFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "ledger-state",
		Usage:    "path to the ledger state file",
		Required: true,
		EnvVars:  []string{config.EnvLedgerState},
	}
}

func main() {
	app := &cli.App{
		Name:  "merkledrop",
		Usage: "Merkle-committed token distribution tool",
		Description: `Builds merkle commitments over recipient allocation lists and stores
the serialized trees in content-addressed storage.

The root and proof commands work offline from a recipients file. The
init, list, sent, claim and revoke commands drive the full distribution
lifecycle against an in-process ledger whose state is carried in the
--ledger-state file; use the badger or redis store backend so the tree
blobs outlive the process. The demo command runs the whole flow in a
single invocation.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store-type",
				Value:   string(config.StoreTypeMemory),
				Usage:   "content store backend: memory, badger or redis",
				EnvVars: []string{config.EnvStoreType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "data directory for the badger store",
				EnvVars: []string{config.EnvBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "redis server address (host:port)",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "root",
				Usage: "Compute the merkle root, total and content id for a recipients file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipients", Usage: "path to recipients JSON file", Required: true},
				},
				Action: rootAction,
			},
			{
				Name:  "proof",
				Usage: "Derive the merkle proof for one wallet in a recipients file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipients", Usage: "path to recipients JSON file", Required: true},
					&cli.StringFlag{Name: "address", Usage: "wallet address to prove", Required: true},
				},
				Action: proofAction,
			},
			{
				Name:  "init",
				Usage: "Initialize a distribution from a recipients file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipients", Usage: "path to recipients JSON file", Required: true},
					&cli.StringFlag{Name: "token", Usage: "token address to distribute", Required: true},
					&cli.StringFlag{Name: "authority", Usage: "creator wallet address", Required: true},
					&cli.Int64Flag{Name: "ended-at", Usage: "revocation deadline (unix seconds, 0 = none)"},
					ledgerStateFlag(),
				},
				Action: initAction,
			},
			{
				Name:  "list",
				Usage: "List pending allocations for a wallet across all distributions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "wallet address to query", Required: true},
					ledgerStateFlag(),
				},
				Action: listAction,
			},
			{
				Name:  "sent",
				Usage: "List distributions created by a wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "creator wallet address", Required: true},
					ledgerStateFlag(),
				},
				Action: sentAction,
			},
			{
				Name:  "claim",
				Usage: "Claim a wallet's allocation from one distribution",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "distributor", Usage: "distributor address", Required: true},
					&cli.StringFlag{Name: "address", Usage: "claimant wallet address", Required: true},
					ledgerStateFlag(),
				},
				Action: claimAction,
			},
			{
				Name:  "revoke",
				Usage: "Revoke a distribution past its deadline and reclaim the balance",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "distributor", Usage: "distributor address", Required: true},
					ledgerStateFlag(),
				},
				Action: revokeAction,
			},
			{
				Name:  "demo",
				Usage: "Run the full initialize/list/claim flow in one invocation",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipients", Usage: "path to recipients JSON file", Required: true},
					&cli.StringFlag{Name: "token", Usage: "token address to distribute", Required: true},
					&cli.StringFlag{Name: "authority", Usage: "creator wallet address", Required: true},
					&cli.Int64Flag{Name: "ended-at", Usage: "revocation deadline (unix seconds, 0 = none)"},
				},
				Action: demoAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadRecipients reads an ordered recipients list from a JSON file.
func loadRecipients(path string) ([]types.Recipient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipients file: %w", err)
	}

	var recipients []types.Recipient
	if err := json.Unmarshal(data, &recipients); err != nil {
		return nil, fmt.Errorf("failed to parse recipients file: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("recipients file %s is empty", path)
	}
	return recipients, nil
}

// buildTree encodes recipients and builds their tree.
func buildTree(recipients []types.Recipient) (*merkle.Tree, error) {
	leaves := make([]types.Leaf, len(recipients))
	for i, recipient := range recipients {
		leaf, err := merkle.NewLeaf(recipient, i)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}
	return merkle.Build(leaves)
}

// newContentStore builds the configured store backend.
func newContentStore(c *cli.Context, l *zap.Logger) (store.IContentStore, error) {
	storeType, err := config.ParseStoreType(c.String("store-type"))
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		StoreType:     storeType,
		BadgerPath:    c.String("badger-path"),
		RedisAddress:  c.String("redis-address"),
		RedisPassword: c.String("redis-password"),
		RedisDB:       c.Int("redis-db"),
		Verbose:       c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.StoreType {
	case config.StoreTypeBadger:
		return badgerstore.NewBadgerStore(cfg.BadgerPath, l)
	case config.StoreTypeRedis:
		return redisstore.NewRedisStore(&redisstore.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
	default:
		return memorystore.NewMemoryStore(), nil
	}
}

// session bundles the collaborators of one stateful CLI invocation.
type session struct {
	client    *airdrop.Client
	ledger    *ledgermemory.MemoryLedger
	statePath string
	close     func()
}

// newSession builds logger, store and ledger, restoring the ledger from the
// --ledger-state file when it exists.
func newSession(c *cli.Context) (*session, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, err
	}

	contentStore, err := newContentStore(c, l)
	if err != nil {
		_ = l.Sync()
		return nil, err
	}

	ml := ledgermemory.NewMemoryLedger(l)
	statePath := c.String("ledger-state")
	if data, err := os.ReadFile(statePath); err == nil {
		if err := ml.Restore(data); err != nil {
			_ = contentStore.Close()
			_ = l.Sync()
			return nil, fmt.Errorf("failed to restore ledger state from %s: %w", statePath, err)
		}
	} else if !os.IsNotExist(err) {
		_ = contentStore.Close()
		_ = l.Sync()
		return nil, fmt.Errorf("failed to read ledger state file: %w", err)
	}

	client, err := airdrop.NewClient(&airdrop.ClientConfig{
		Ledger: ml,
		Store:  contentStore,
		Logger: l,
	})
	if err != nil {
		_ = contentStore.Close()
		_ = l.Sync()
		return nil, err
	}

	return &session{
		client:    client,
		ledger:    ml,
		statePath: statePath,
		close: func() {
			_ = contentStore.Close()
			_ = l.Sync()
		},
	}, nil
}

// save writes the ledger state back to the --ledger-state file.
func (s *session) save() error {
	data, err := s.ledger.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.statePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger state file: %w", err)
	}
	return nil
}

func rootAction(c *cli.Context) error {
	recipients, err := loadRecipients(c.String("recipients"))
	if err != nil {
		return err
	}

	tree, err := buildTree(recipients)
	if err != nil {
		return err
	}

	id, err := store.Address(tree.Serialize())
	if err != nil {
		return err
	}

	root := tree.Root()
	fmt.Printf("merkle root: %s\n", common.Hash(root).Hex())
	fmt.Printf("total:       %s\n", tree.Total().String())
	fmt.Printf("leaves:      %d\n", len(recipients))
	fmt.Printf("content id:  %s\n", id)
	return nil
}

func proofAction(c *cli.Context) error {
	address := c.String("address")
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%q is not a valid address", address)
	}
	wallet := common.HexToAddress(address)

	recipients, err := loadRecipients(c.String("recipients"))
	if err != nil {
		return err
	}

	tree, err := buildTree(recipients)
	if err != nil {
		return err
	}

	for _, leaf := range tree.Leaves() {
		if leaf.Authority != wallet {
			continue
		}

		proof, err := tree.DeriveProof(leaf)
		if err != nil {
			return err
		}

		root := tree.Root()
		fmt.Printf("merkle root: %s\n", common.Hash(root).Hex())
		fmt.Printf("amount:      %s\n", leaf.Amount.String())
		for i, sibling := range proof {
			fmt.Printf("proof[%d]:    %s\n", i, common.Hash(sibling).Hex())
		}
		return nil
	}

	return fmt.Errorf("wallet %s is not in the recipient list", address)
}

func initAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	recipients, err := loadRecipients(c.String("recipients"))
	if err != nil {
		return err
	}

	result, err := s.client.InitializeAirdrop(context.Background(), &airdrop.InitializeAirdropParams{
		Recipients:   recipients,
		TokenAddress: c.String("token"),
		Authority:    c.String("authority"),
		EndedAt:      c.Int64("ended-at"),
	})
	if err != nil {
		return err
	}
	if err := s.save(); err != nil {
		return err
	}

	fmt.Printf("distributor: %s\n", result.DistributorAddress.Hex())
	fmt.Printf("tx:          %s\n", result.TxID)
	fmt.Printf("recipients:  %d\n", len(recipients))
	return nil
}

func listAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	pending, err := s.client.GetRedeemListByAddress(context.Background(), c.String("address"))
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		fmt.Println("no pending allocations")
		return nil
	}
	for _, entry := range pending {
		fmt.Printf("distributor: %s  mint: %s  amount: %s  unlock: %d\n",
			entry.DistributorAddress.Hex(), entry.Mint.Hex(), entry.Amount.String(), entry.UnlockTime)
	}
	return nil
}

func sentAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	sent, err := s.client.GetSentAirdropByAddress(context.Background(), c.String("address"))
	if err != nil {
		return err
	}

	if len(sent) == 0 {
		fmt.Println("no distributions created by this wallet")
		return nil
	}
	for _, dist := range sent {
		fmt.Printf("distributor: %s  mint: %s  total: %s  ended_at: %d  revoked: %t\n",
			dist.DistributorAddress.Hex(), dist.Mint.Hex(), dist.Total.String(), dist.EndedAt, dist.Revoked)
	}
	return nil
}

func claimAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.client.Claim(context.Background(), &airdrop.ClaimParams{
		DistributorAddress: c.String("distributor"),
		WalletAddress:      c.String("address"),
	})
	if err != nil {
		return err
	}
	if err := s.save(); err != nil {
		return err
	}

	fmt.Printf("claimed, tx %s for %s\n", result.TxID, result.DstAddress.Hex())
	return nil
}

func revokeAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.client.Revoke(context.Background(), &airdrop.RevokeParams{
		DistributorAddress: c.String("distributor"),
	})
	if err != nil {
		return err
	}
	if err := s.save(); err != nil {
		return err
	}

	fmt.Printf("revoked, tx %s, balance returned to %s\n", result.TxID, result.DstAddress.Hex())
	return nil
}

func demoAction(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	contentStore, err := newContentStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = contentStore.Close() }()

	recipients, err := loadRecipients(c.String("recipients"))
	if err != nil {
		return err
	}

	client, err := airdrop.NewClient(&airdrop.ClientConfig{
		Ledger: ledgermemory.NewMemoryLedger(l),
		Store:  contentStore,
		Logger: l,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	initResult, err := client.InitializeAirdrop(ctx, &airdrop.InitializeAirdropParams{
		Recipients:   recipients,
		TokenAddress: c.String("token"),
		Authority:    c.String("authority"),
		EndedAt:      c.Int64("ended-at"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("distributor: %s\n", initResult.DistributorAddress.Hex())

	for _, recipient := range recipients {
		pending, err := client.GetRedeemListByAddress(ctx, recipient.Address)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d pending airdrop(s)\n", recipient.Address, len(pending))

		claimResult, err := client.Claim(ctx, &airdrop.ClaimParams{
			DistributorAddress: initResult.DistributorAddress.Hex(),
			WalletAddress:      recipient.Address,
		})
		if err != nil {
			fmt.Printf("%s: claim failed: %v\n", recipient.Address, err)
			continue
		}
		fmt.Printf("%s: claimed, tx %s\n", recipient.Address, claimResult.TxID)
	}

	return nil
}
