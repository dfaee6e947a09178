package indexer

import (
	"errors"
	"fmt"

	"github.com/chainindex/evmindexer/codec"
	"github.com/chainindex/evmindexer/model"
	"github.com/chainindex/evmindexer/storage"
)

// resolveCounters merges the batch's accumulated address and token work
// against each entity's existing store record, producing the associated-data
// write operations at their correct new indices plus the updated header
// records themselves (spec §4.4 step 11: "counter resolution").
//
// Contract code and token-contract classification are immutable once first
// recorded: the store's existing value wins whenever this batch also saw a
// value, on the theory that the first sighting is authoritative and a
// re-deploy at the same address is out of scope (spec §4.4, §9 Non-goals).
func resolveCounters(facade *storage.Facade, addresses map[string]*addressWork, tokens map[string]*tokenWork) ([]storage.WriteOp, error) {
	var ops []storage.WriteOp

	for addr, w := range addresses {
		existing, err := loadAddress(facade, addr)
		if err != nil {
			return nil, fmt.Errorf("indexer: load address %s: %w", addr, err)
		}

		mergeCode(&existing, w.code)
		mergeTokenContract(&existing, w.tokenContract)

		for _, d := range w.inputTx {
			existing.InputTxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagInputTx, existing.InputTxIndex, codec.EncodeTxDelta(d.TxHash, d.Value, d.Timestamp)))
		}
		for _, d := range w.outputTx {
			existing.OutputTxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagOutputTx, existing.OutputTxIndex, codec.EncodeTxDelta(d.TxHash, d.Value, d.Timestamp)))
		}
		for _, d := range w.inputToken {
			existing.InputTokenTxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagInputToken, existing.InputTokenTxIndex, codec.EncodeTokenTxDelta(d.TokenTxIndex, d.Timestamp)))
		}
		for _, d := range w.outputToken {
			existing.OutputTokenTxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagOutputToken, existing.OutputTokenTxIndex, codec.EncodeTokenTxDelta(d.TokenTxIndex, d.Timestamp)))
		}
		for _, d := range w.inputIntTx {
			existing.InputIntTxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagInputIntTx, existing.InputIntTxIndex, codec.EncodeIntTxDelta(d.IntTxIndex, d.Value, d.Timestamp)))
		}
		for _, d := range w.outputIntTx {
			existing.OutputIntTxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagOutputIntTx, existing.OutputIntTxIndex, codec.EncodeIntTxDelta(d.IntTxIndex, d.Value, d.Timestamp)))
		}
		for _, blockHash := range w.mined {
			existing.MinedIndex++
			ops = append(ops, associatedDataOp(addr, model.TagMined, existing.MinedIndex, codec.EncodeMinedDelta(blockHash)))
		}

		ops = append(ops, storage.WriteOp{Key: storage.AddressKey(addr), Value: codec.EncodeAddress(existing)})
	}

	for addr, w := range tokens {
		existing, err := loadToken(facade, addr, w.descriptor)
		if err != nil {
			return nil, fmt.Errorf("indexer: load token %s: %w", addr, err)
		}

		for _, d := range w.transfers {
			existing.TxIndex++
			ops = append(ops, associatedDataOp(addr, model.TagTokenTx, existing.TxIndex, codec.EncodeTokenTxDelta(d.TokenTxIndex, d.Timestamp)))
		}

		ops = append(ops, storage.WriteOp{Key: storage.TokenKey(addr), Value: codec.EncodeToken(existing)})
	}

	return ops, nil
}

func associatedDataOp(owner string, tag model.AddressTag, index uint64, payload []byte) storage.WriteOp {
	return storage.WriteOp{Key: storage.AssociatedDataKey(owner, string(tag), index), Value: payload}
}

// loadAddress reads the existing Address record, or returns a fresh record
// seeded with the spec's zero-state sentinels if this is the address's
// first appearance (spec §3 "Address", "Edge cases: first-seen address").
func loadAddress(facade *storage.Facade, addr string) (model.Address, error) {
	raw, err := facade.Get(storage.AddressKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, TokenContract: model.TokenContractNone}, nil
	}
	if err != nil {
		return model.Address{}, err
	}
	return codec.DecodeAddress(raw)
}

// loadToken reads the existing Token record, or seeds one from this batch's
// descriptor (or a bare placeholder, if the token is only known via a
// transfer that already passed the token filter) on first appearance.
func loadToken(facade *storage.Facade, addr string, descriptor *model.Token) (model.Token, error) {
	raw, err := facade.Get(storage.TokenKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		if descriptor != nil {
			return *descriptor, nil
		}
		return model.Token{}, nil
	}
	if err != nil {
		return model.Token{}, err
	}
	existing, err := codec.DecodeToken(raw)
	if err != nil {
		return model.Token{}, err
	}
	if descriptor != nil {
		// A later-arriving descriptor only fills in fields the store has
		// never seen; txIndex keeps accumulating regardless.
		fill := func(dst *string, src string) {
			if *dst == "" {
				*dst = src
			}
		}
		fill(&existing.Symbol, descriptor.Symbol)
		fill(&existing.Name, descriptor.Name)
		fill(&existing.Decimals, descriptor.Decimals)
		fill(&existing.TotalSupply, descriptor.TotalSupply)
		if existing.Type == "" {
			existing.Type = descriptor.Type
		}
	}
	return existing, nil
}

// mergeCode applies "first sighting is authoritative": a batch-observed
// code is only written if the address has none yet.
func mergeCode(existing *model.Address, code string) {
	if code == "" {
		return
	}
	if existing.Code == "" || existing.Code == model.NoCodeMarker {
		existing.Code = code
	}
}

func mergeTokenContract(existing *model.Address, kind model.TokenContractKind) {
	if kind == "" {
		return
	}
	if existing.TokenContract == "" || existing.TokenContract == model.TokenContractNone {
		existing.TokenContract = kind
	}
}
