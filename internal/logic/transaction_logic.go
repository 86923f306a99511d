package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/wallet-reward/internal/chain"
	"github.com/blues/wallet-reward/internal/config"
	"github.com/blues/wallet-reward/internal/event"
	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/metrics"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/repository"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const sweepBatchSize = 500

// TransferRequest 转账请求
type TransferRequest struct {
	From            string
	To              string
	ContractAddress string          // 为空表示原生币转账
	Value           decimal.Decimal // 原生币数量（最小单位）
	TokenAmount     decimal.Decimal // 代币数量（最小单位）
	Administrative  bool
	Label           string
	Issuer          string
}

func (r *TransferRequest) validate() error {
	if !chain.IsAddress(r.From) || !chain.IsAddress(r.To) {
		return fmt.Errorf("%w: 地址格式错误", ErrInvalidTransfer)
	}
	if r.Value.IsNegative() || r.TokenAmount.IsNegative() {
		return fmt.Errorf("%w: 金额不能为负", ErrInvalidTransfer)
	}
	if r.ContractAddress != "" {
		if !chain.IsAddress(r.ContractAddress) {
			return fmt.Errorf("%w: 合约地址格式错误", ErrInvalidTransfer)
		}
		if !r.TokenAmount.IsPositive() {
			return fmt.Errorf("%w: 代币数量必须大于0", ErrInvalidTransfer)
		}
		return nil
	}
	if !r.Value.IsPositive() {
		return fmt.Errorf("%w: 转账金额必须大于0", ErrInvalidTransfer)
	}
	return nil
}

// SweepResult 一轮待打包交易检查的结果
type SweepResult struct {
	Checked   int `json:"checked"`
	Resent    int `json:"resent"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
	Recovered int `json:"recovered"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

func (r *SweepResult) add(o SweepResult) {
	r.Checked += o.Checked
	r.Resent += o.Resent
	r.Confirmed += o.Confirmed
	r.Failed += o.Failed
	r.Abandoned += o.Abandoned
	r.Recovered += o.Recovered
	r.Skipped += o.Skipped
	r.Errors += o.Errors
}

// TransactionLogic 交易生命周期管理
type TransactionLogic struct {
	db         *gorm.DB
	txs        *repository.TransactionRepository
	ledger     chain.Ledger
	signer     chain.Signer
	dispatcher *event.Dispatcher
	config     config.TransactionConfig
	chainCfg   config.ChainConfig
	locks      *keyedMutex
	gasPrice   atomic.Pointer[big.Int]
	now        func() time.Time
}

// NewTransactionLogic 创建交易生命周期管理
func NewTransactionLogic(
	db *gorm.DB,
	ledger chain.Ledger,
	signer chain.Signer,
	dispatcher *event.Dispatcher,
	cfg config.TransactionConfig,
	chainCfg config.ChainConfig,
) *TransactionLogic {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 15 * time.Second
	}
	if cfg.SweepPoolSize <= 0 {
		cfg.SweepPoolSize = 4
	}
	if chainCfg.GasLimit == 0 {
		chainCfg.GasLimit = 100000
	}
	if chainCfg.NativeGasLimit == 0 {
		chainCfg.NativeGasLimit = 21000
	}

	return &TransactionLogic{
		db:         db,
		txs:        repository.NewTransactionRepository(db),
		ledger:     ledger,
		signer:     signer,
		dispatcher: dispatcher,
		config:     cfg,
		chainCfg:   chainCfg,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// Submit 分配 nonce、签名并广播交易
func (l *TransactionLogic) Submit(ctx context.Context, req TransferRequest) (*model.TransactionModel, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	from := chain.NormalizeAddress(req.From)
	gasPrice, err := l.currentGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 gas 价格失败: %w", err)
	}

	// 同一发送方串行提交，保证 nonce 不重复且连续
	unlock := l.locks.Lock(from)
	defer unlock()

	nonce, err := l.nextNonce(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("分配 nonce 失败: %w", err)
	}

	record := &model.TransactionModel{
		FromAddress:    from,
		ToAddress:      chain.NormalizeAddress(req.To),
		Value:          req.Value,
		ContractAmount: req.TokenAmount,
		Nonce:          int64(nonce),
		Status:         model.TransactionStatusCreated,
		Administrative: req.Administrative,
		GasPrice:       decimal.NewFromBigInt(gasPrice, 0),
		Label:          req.Label,
		Issuer:         req.Issuer,
	}
	if req.ContractAddress != "" {
		record.ContractAddress = chain.NormalizeAddress(req.ContractAddress)
	}
	if err := l.txs.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("保存交易失败: %w", err)
	}

	signed, raw, err := l.sign(ctx, record, gasPrice)
	if err != nil {
		l.failActive(ctx, record, "sign: "+err.Error(), "sign")
		return record, &SubmissionError{Kind: SubmissionRejected, Err: err}
	}

	hash := chain.NormalizeHash(signed.Hash().Hex())
	rawHex := hexutil.Encode(raw)
	if _, err := l.txs.UpdateActive(ctx, record.Id, map[string]interface{}{
		"hash":            hash,
		"raw_transaction": rawHex,
	}); err != nil {
		if repository.IsDuplicateKey(err) {
			l.failActive(ctx, record, "duplicate hash "+hash, "integrity")
			return record, &SubmissionError{Kind: SubmissionIntegrity, Hash: hash, Err: err}
		}
		l.failActive(ctx, record, "persist hash: "+err.Error(), "persist")
		return record, fmt.Errorf("保存交易哈希失败: %w", err)
	}
	record.Hash = &hash
	record.RawTransaction = rawHex

	updates := map[string]interface{}{
		"status":                model.TransactionStatusPending,
		"sent_timestamp":        l.now().UnixMilli(),
		"sending_attempt_count": 1,
	}

	sendErr := l.send(ctx, raw)
	switch {
	case sendErr == nil || chain.IsAlreadyKnown(sendErr):
	case chain.Classify(sendErr).IsTransient():
		// 留给重发任务处理
		logger.Warn("Transient error sending transaction %s (nonce %d), left pending: %v", hash, nonce, sendErr)
		updates["error"] = sendErr.Error()
	default:
		l.failActive(ctx, record, sendErr.Error(), "rejected")
		metrics.TransactionsSubmitted.WithLabelValues("rejected").Inc()
		return record, &SubmissionError{Kind: SubmissionRejected, Hash: hash, Err: sendErr}
	}

	if _, err := l.txs.UpdateActive(ctx, record.Id, updates); err != nil {
		return record, fmt.Errorf("更新交易状态失败: %w", err)
	}
	record.Status = model.TransactionStatusPending
	record.SentTimestamp = updates["sent_timestamp"].(int64)
	record.SendingAttemptCount = 1

	metrics.TransactionsSubmitted.WithLabelValues("pending").Inc()
	logger.Info("Submitted transaction %s from %s nonce %d", hash, from, nonce)
	return record, nil
}

// CheckPendingTransactions 重发超时未打包的交易，超过最大次数则置为失败
func (l *TransactionLogic) CheckPendingTransactions(ctx context.Context, maxPendingAge time.Duration) (*SweepResult, error) {
	cutoff := l.now().Add(-maxPendingAge)
	result := &SweepResult{}

	// 长时间停留在 created 的交易：未签名的释放 nonce，已签名的可能已广播，转为待打包由下面重发
	stale, err := l.txs.FindCreatedBefore(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("查询未广播交易失败: %w", err)
	}
	for i := range stale {
		tx := &stale[i]
		if tx.GetHash() == "" || tx.RawTransaction == "" {
			if l.failActive(ctx, tx, "abandoned before signing", "abandoned") {
				result.Abandoned++
			}
			continue
		}
		if l.recoverSigned(ctx, tx) {
			result.Recovered++
		} else {
			result.Errors++
		}
	}

	pending, err := l.txs.FindPendingSentBefore(ctx, cutoff.UnixMilli(), sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("查询待打包交易失败: %w", err)
	}
	if len(pending) == 0 {
		logger.Debug("No stuck pending transactions")
		return result, nil
	}

	bySender := make(map[string][]model.TransactionModel)
	for _, tx := range pending {
		bySender[tx.FromAddress] = append(bySender[tx.FromAddress], tx)
	}

	poolSize := l.config.SweepPoolSize
	if len(bySender) < poolSize {
		poolSize = len(bySender)
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep pool: %w", err)
	}
	defer pool.Release()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for sender, txs := range bySender {
		txs := txs
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			r := l.sweepSender(ctx, txs)
			mu.Lock()
			result.add(r)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit sweep for sender %s: %v", sender, err)
			mu.Lock()
			result.Errors += len(txs)
			mu.Unlock()
		}
	}
	wg.Wait()

	logger.Info("Pending transaction sweep completed. checked=%d resent=%d confirmed=%d failed=%d abandoned=%d recovered=%d skipped=%d errors=%d",
		result.Checked, result.Resent, result.Confirmed, result.Failed, result.Abandoned, result.Recovered, result.Skipped, result.Errors)
	return result, nil
}

// recoverSigned 已签名但未记为待打包的交易转为待打包，发送时间取创建时间以便立即进入重发
func (l *TransactionLogic) recoverSigned(ctx context.Context, tx *model.TransactionModel) bool {
	updated, err := l.txs.UpdateActive(ctx, tx.Id, map[string]interface{}{
		"status":                model.TransactionStatusPending,
		"sent_timestamp":        tx.CreatedAt.UnixMilli(),
		"sending_attempt_count": 1,
	})
	if err != nil {
		logger.Error("Failed to recover signed transaction %s: %v", tx.GetHash(), err)
		return false
	}
	if updated {
		logger.Warn("Transaction %s from %s nonce %d was signed but never marked pending, resuming it",
			tx.GetHash(), tx.FromAddress, tx.Nonce)
	}
	return true
}

func (l *TransactionLogic) sweepSender(ctx context.Context, txs []model.TransactionModel) SweepResult {
	var result SweepResult
	for i := range txs {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		tx := &txs[i]

		refreshed, err := l.RefreshTransactionFromLedger(ctx, tx.GetHash())
		if err != nil {
			logger.Warn("Failed to refresh pending transaction %s: %v", tx.GetHash(), err)
			result.Errors++
			continue
		}
		if refreshed.Status.IsTerminal() {
			result.Confirmed++
			continue
		}
		if refreshed.IsReplaced() {
			if l.settleReplaced(ctx, refreshed) {
				result.Failed++
			} else {
				result.Skipped++
			}
			continue
		}

		if tx.SendingAttemptCount >= l.config.MaxAttempts {
			if l.failActive(ctx, tx, fmt.Sprintf("still pending after %d sending attempts", tx.SendingAttemptCount), "max_attempts") {
				logger.Error("FATAL: transaction %s from %s nonce %d was not mined after %d attempts and is marked as failed",
					tx.GetHash(), tx.FromAddress, tx.Nonce, tx.SendingAttemptCount)
				result.Failed++
			} else {
				result.Skipped++
			}
			continue
		}

		switch l.resend(ctx, tx) {
		case outcomeResent:
			result.Resent++
		case outcomeFailed:
			result.Failed++
		case outcomeSkipped:
			result.Skipped++
		default:
			result.Errors++
		}
	}
	return result
}

// settleReplaced 替换交易已终结而旧交易仍未上链时，旧交易置为失败
func (l *TransactionLogic) settleReplaced(ctx context.Context, tx *model.TransactionModel) bool {
	replacement, err := l.txs.GetByHash(ctx, tx.ReplacedBy)
	if err != nil {
		logger.Warn("Failed to load replacement %s of %s: %v", tx.ReplacedBy, tx.GetHash(), err)
		return false
	}
	if replacement != nil && !replacement.Status.IsTerminal() {
		return false
	}
	return l.failActive(ctx, tx, "replaced by "+tx.ReplacedBy, "replaced")
}

type sweepOutcome int

const (
	outcomeResent sweepOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeError
)

// resend 原样重发；gas 价格上涨时以新价格替换
func (l *TransactionLogic) resend(ctx context.Context, tx *model.TransactionModel) sweepOutcome {
	unlock := l.locks.Lock(tx.FromAddress)
	defer unlock()

	if tx.RawTransaction == "" {
		// 外部签名的交易无法重发，只累计次数直到上链或达到上限
		if _, err := l.txs.UpdateResent(ctx, tx.Id, tx.SendingAttemptCount, map[string]interface{}{
			"sent_timestamp":        l.now().UnixMilli(),
			"sending_attempt_count": tx.SendingAttemptCount + 1,
		}); err != nil {
			logger.Error("Failed to update transaction %s: %v", tx.GetHash(), err)
			return outcomeError
		}
		return outcomeSkipped
	}

	if gasPrice, err := l.currentGasPrice(ctx); err == nil && gasPrice.Cmp(tx.GasPrice.BigInt()) > 0 {
		if _, err := l.replace(ctx, tx, gasPrice); err != nil {
			var subErr *SubmissionError
			if errors.As(err, &subErr) {
				return outcomeFailed
			}
			logger.Warn("Failed to replace transaction %s: %v", tx.GetHash(), err)
			return outcomeError
		}
		return outcomeResent
	}

	raw, err := hexutil.Decode(tx.RawTransaction)
	if err != nil {
		if l.failActive(ctx, tx, "invalid raw transaction: "+err.Error(), "invalid_raw") {
			return outcomeFailed
		}
		return outcomeSkipped
	}

	updated, err := l.txs.UpdateResent(ctx, tx.Id, tx.SendingAttemptCount, map[string]interface{}{
		"sent_timestamp":        l.now().UnixMilli(),
		"sending_attempt_count": tx.SendingAttemptCount + 1,
	})
	if err != nil {
		logger.Error("Failed to update resent transaction %s: %v", tx.GetHash(), err)
		return outcomeError
	}
	if !updated {
		return outcomeSkipped
	}

	sendErr := l.send(ctx, raw)
	switch {
	case sendErr == nil || chain.IsAlreadyKnown(sendErr):
	case chain.IsNonceTooLow(sendErr):
		// nonce 已被占用，由回执确认或达到最大次数后失败
		logger.Warn("Nonce %d of %s already used while resending %s", tx.Nonce, tx.FromAddress, tx.GetHash())
	case chain.Classify(sendErr).IsTransient():
		logger.Warn("Transient error resending transaction %s: %v", tx.GetHash(), sendErr)
	default:
		if l.failActive(ctx, tx, sendErr.Error(), "rejected") {
			return outcomeFailed
		}
		return outcomeSkipped
	}

	metrics.TransactionsResent.Inc()
	logger.Info("Resent transaction %s (attempt %d)", tx.GetHash(), tx.SendingAttemptCount+1)
	return outcomeResent
}

// BoostTransaction 以更高的 gas 价格替换待打包交易
func (l *TransactionLogic) BoostTransaction(ctx context.Context, hash string, gasPrice *big.Int) (*model.TransactionModel, error) {
	hash = chain.NormalizeHash(hash)
	tx, err := l.txs.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	unlock := l.locks.Lock(tx.FromAddress)
	defer unlock()

	// 加锁后重新读取
	tx, err = l.txs.GetById(ctx, tx.Id)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if tx.Status != model.TransactionStatusPending {
		return nil, ErrTransactionNotPending
	}

	oldPrice := tx.GasPrice.BigInt()
	if gasPrice == nil {
		// 默认在原价基础上提高 20%
		gasPrice = new(big.Int).Div(new(big.Int).Mul(oldPrice, big.NewInt(120)), big.NewInt(100))
		if current, err := l.currentGasPrice(ctx); err == nil && current.Cmp(gasPrice) > 0 {
			gasPrice = current
		}
	}
	if gasPrice.Cmp(oldPrice) <= 0 {
		return nil, fmt.Errorf("%w: 新的 gas 价格必须高于 %s", ErrInvalidTransfer, oldPrice)
	}

	return l.replace(ctx, tx, gasPrice)
}

// replace 用同一 nonce 创建新交易替换旧交易，调用方需持有发送方锁
func (l *TransactionLogic) replace(ctx context.Context, old *model.TransactionModel, gasPrice *big.Int) (*model.TransactionModel, error) {
	replacement := &model.TransactionModel{
		FromAddress:         old.FromAddress,
		ToAddress:           old.ToAddress,
		ContractAddress:     old.ContractAddress,
		Value:               old.Value,
		ContractAmount:      old.ContractAmount,
		Nonce:               old.Nonce,
		Status:              model.TransactionStatusPending,
		Administrative:      old.Administrative,
		GasPrice:            decimal.NewFromBigInt(gasPrice, 0),
		SentTimestamp:       l.now().UnixMilli(),
		SendingAttemptCount: old.SendingAttemptCount + 1,
		Label:               old.Label,
		Issuer:              old.Issuer,
	}

	signed, raw, err := l.sign(ctx, replacement, gasPrice)
	if err != nil {
		return nil, fmt.Errorf("签名替换交易失败: %w", err)
	}
	hash := chain.NormalizeHash(signed.Hash().Hex())
	replacement.Hash = &hash
	replacement.RawTransaction = hexutil.Encode(raw)

	err = l.db.Transaction(func(dbTx *gorm.DB) error {
		repo := l.txs.WithTx(dbTx)
		replaced, err := repo.MarkReplaced(ctx, old.Id, hash)
		if err != nil {
			return err
		}
		if !replaced {
			return ErrTransactionNotPending
		}
		return repo.Create(ctx, replacement)
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, &SubmissionError{Kind: SubmissionIntegrity, Hash: hash, Err: err}
		}
		return nil, err
	}

	sendErr := l.send(ctx, raw)
	switch {
	case sendErr == nil || chain.IsAlreadyKnown(sendErr):
	case chain.Classify(sendErr).IsTransient():
		logger.Warn("Transient error sending replacement %s: %v", hash, sendErr)
	default:
		// 替换交易被拒绝，旧交易继续由重发任务跟踪
		l.failActive(ctx, replacement, sendErr.Error(), "rejected")
		if _, err := l.txs.RestoreReplaced(ctx, old.Id); err != nil {
			logger.Error("Failed to restore replaced transaction %s: %v", old.GetHash(), err)
		}
		return replacement, &SubmissionError{Kind: SubmissionRejected, Hash: hash, Err: sendErr}
	}

	logger.Info("Transaction %s replaced by %s with gas price %s", old.GetHash(), hash, gasPrice)
	l.dispatcher.Publish(ctx, event.TypeTransactionReplaced, event.TransactionReplaced{
		OldHash: old.GetHash(),
		NewHash: hash,
	})
	return replacement, nil
}

// TrackReplacement 登记在系统外对 oldHash 加速后得到的新交易 newHash，返回新交易记录
func (l *TransactionLogic) TrackReplacement(ctx context.Context, oldHash, newHash string) (*model.TransactionModel, error) {
	oldHash, newHash = chain.NormalizeHash(oldHash), chain.NormalizeHash(newHash)
	if oldHash == newHash {
		return nil, fmt.Errorf("%w: 新旧交易哈希相同", ErrInvalidTransfer)
	}
	old, err := l.txs.GetByHash(ctx, oldHash)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if old == nil {
		return nil, ErrTransactionNotFound
	}

	unlock := l.locks.Lock(old.FromAddress)
	defer unlock()

	existing, err := l.txs.GetByHash(ctx, newHash)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	old, err = l.txs.GetById(ctx, old.Id)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if old.Status == model.TransactionStatusSucceeded {
		return nil, fmt.Errorf("%w: 交易 %s 已成功上链", ErrInvalidTransfer, oldHash)
	}

	replacement := &model.TransactionModel{
		Hash:                &newHash,
		FromAddress:         old.FromAddress,
		ToAddress:           old.ToAddress,
		ContractAddress:     old.ContractAddress,
		Value:               old.Value,
		ContractAmount:      old.ContractAmount,
		Nonce:               old.Nonce,
		Status:              model.TransactionStatusPending,
		Administrative:      old.Administrative,
		GasPrice:            old.GasPrice,
		SentTimestamp:       l.now().UnixMilli(),
		SendingAttemptCount: old.SendingAttemptCount + 1,
		Label:               old.Label,
		Issuer:              old.Issuer,
	}

	callCtx, cancel := context.WithTimeout(ctx, l.config.ReceiptTimeout)
	transfer, err := l.ledger.GetTransaction(callCtx, newHash)
	cancel()
	switch {
	case err == nil:
		if chain.NormalizeAddress(transfer.From) != old.FromAddress || int64(transfer.Nonce) != old.Nonce {
			return nil, fmt.Errorf("%w: 交易 %s 与 %s 的发送方或 nonce 不一致", ErrInvalidTransfer, newHash, oldHash)
		}
		replacement.ToAddress = chain.NormalizeAddress(transfer.To)
		replacement.Value = bigToDecimal(transfer.Value)
		replacement.ContractAmount = bigToDecimal(transfer.TokenAmount)
		replacement.ContractAddress = ""
		if transfer.ContractAddress != "" {
			replacement.ContractAddress = chain.NormalizeAddress(transfer.ContractAddress)
		}
	case errors.Is(err, chain.ErrNotFound):
		// 节点尚未收到，按旧交易登记，由区块监听和重发任务跟进
		logger.Warn("Replacement %s of %s not found on the ledger yet, tracking it from the original", newHash, oldHash)
	default:
		metrics.LedgerErrors.WithLabelValues("transaction", string(chain.Classify(err).Class)).Inc()
		return nil, fmt.Errorf("查询交易详情失败: %w", err)
	}

	err = l.db.Transaction(func(dbTx *gorm.DB) error {
		repo := l.txs.WithTx(dbTx)
		if old.Status == model.TransactionStatusPending {
			if _, err := repo.MarkReplaced(ctx, old.Id, newHash); err != nil {
				return err
			}
		}
		return repo.Create(ctx, replacement)
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return l.txs.GetByHash(ctx, newHash)
		}
		return nil, fmt.Errorf("保存替换交易失败: %w", err)
	}
	logger.Info("Tracking external replacement %s of transaction %s (nonce %d)", newHash, oldHash, old.Nonce)

	// 替换交易可能已经上链
	if refreshed, err := l.refreshLocked(ctx, replacement); err == nil {
		return refreshed, nil
	}
	return replacement, nil
}

func (l *TransactionLogic) refreshLocked(ctx context.Context, local *model.TransactionModel) (*model.TransactionModel, error) {
	receipt, err := l.getReceipt(ctx, local.GetHash())
	if err != nil {
		return nil, err
	}
	return l.finalize(ctx, local, receipt)
}

// RefreshTransactionFromLedger 根据链上回执更新交易状态，已终结的交易不做任何修改
func (l *TransactionLogic) RefreshTransactionFromLedger(ctx context.Context, hash string) (*model.TransactionModel, error) {
	hash = chain.NormalizeHash(hash)
	local, err := l.txs.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if local != nil && local.Status.IsTerminal() {
		return local, nil
	}

	receipt, err := l.getReceipt(ctx, hash)
	if errors.Is(err, chain.ErrNotFound) {
		if local == nil {
			return nil, ErrTransactionNotFound
		}
		return local, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询回执失败: %w", err)
	}

	if local == nil {
		return l.recordExternal(ctx, hash, receipt)
	}
	return l.finalize(ctx, local, receipt)
}

func (l *TransactionLogic) finalize(ctx context.Context, local *model.TransactionModel, receipt *chain.Receipt) (*model.TransactionModel, error) {
	hash := local.GetHash()
	updates := receiptUpdates(receipt)
	// 被替换的旧交易最终上链时以它为准，replaced_by 保留作记录
	replaced := local.IsReplaced()

	var (
		applied    bool
		superseded []model.TransactionModel
	)
	err := l.db.Transaction(func(dbTx *gorm.DB) error {
		repo := l.txs.WithTx(dbTx)
		var err error
		applied, err = repo.UpdateActive(ctx, local.Id, updates)
		if err != nil || !applied {
			return err
		}

		superseded, err = repo.FindActiveBySenderNonce(ctx, local.FromAddress, local.Nonce, local.Id)
		if err != nil {
			return err
		}
		_, err = l.cancelSameNonce(ctx, repo, local.FromAddress, local.Nonce, local.Id, hash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("更新交易状态失败: %w", err)
	}

	stored, err := l.txs.GetById(ctx, local.Id)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if !applied {
		return stored, nil
	}

	metrics.TransactionsFinalized.WithLabelValues(string(stored.Status), "receipt").Inc()
	logger.Info("Transaction %s mined in block %d with status %s", hash, stored.BlockNumber, stored.Status)
	l.dispatcher.Publish(ctx, event.TypeTransactionMined, event.TransactionMined{Transaction: *stored})
	if replaced {
		for _, s := range superseded {
			l.dispatcher.Publish(ctx, event.TypeTransactionReplaced, event.TransactionReplaced{
				OldHash: s.GetHash(),
				NewHash: hash,
			})
		}
	}
	return stored, nil
}

// recordExternal 记录非本系统发出但涉及本系统地址的交易
func (l *TransactionLogic) recordExternal(ctx context.Context, hash string, receipt *chain.Receipt) (*model.TransactionModel, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.config.ReceiptTimeout)
	transfer, err := l.ledger.GetTransaction(callCtx, hash)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("查询交易详情失败: %w", err)
	}

	record := &model.TransactionModel{
		Hash:            &hash,
		FromAddress:     chain.NormalizeAddress(transfer.From),
		ToAddress:       chain.NormalizeAddress(transfer.To),
		Value:           bigToDecimal(transfer.Value),
		ContractAmount:  bigToDecimal(transfer.TokenAmount),
		Nonce:           int64(transfer.Nonce),
		Status:          receiptStatus(receipt),
		GasPrice:        bigToDecimal(receipt.GasPrice),
		GasUsed:         int64(receipt.GasUsed),
		BlockHash:       receipt.BlockHash,
		BlockNumber:     int64(receipt.BlockNumber),
		BlockTimestamp:  receipt.BlockTimestamp,
		SentTimestamp:   receipt.BlockTimestamp * 1000,
		Label:           "external",
		ContractAddress: transfer.ContractAddress,
	}
	if record.ContractAddress != "" {
		record.ContractAddress = chain.NormalizeAddress(record.ContractAddress)
	}

	err = l.db.Transaction(func(dbTx *gorm.DB) error {
		repo := l.txs.WithTx(dbTx)
		if err := repo.Create(ctx, record); err != nil {
			return err
		}
		_, err := l.cancelSameNonce(ctx, repo, record.FromAddress, record.Nonce, record.Id, hash)
		return err
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			// 并发刷新已经写入
			return l.txs.GetByHash(ctx, hash)
		}
		return nil, fmt.Errorf("保存外部交易失败: %w", err)
	}

	metrics.TransactionsExternal.Inc()
	logger.Info("Recorded external transaction %s from %s to %s", hash, record.FromAddress, record.ToAddress)
	l.dispatcher.Publish(ctx, event.TypeTransactionSentExternally, event.TransactionSentExternally{Transaction: *record})
	return record, nil
}

// CancelTransactionsWithSameNonce 交易终结后，同一 (sender, nonce) 的其他交易不可能再上链
func (l *TransactionLogic) CancelTransactionsWithSameNonce(ctx context.Context, tx *model.TransactionModel) (int64, error) {
	if !tx.Status.IsTerminal() {
		return 0, fmt.Errorf("交易 %s 尚未终结", tx.GetHash())
	}
	return l.cancelSameNonce(ctx, l.txs, tx.FromAddress, tx.Nonce, tx.Id, tx.GetHash())
}

func (l *TransactionLogic) cancelSameNonce(ctx context.Context, repo *repository.TransactionRepository, from string, nonce int64, keepId int64, keepHash string) (int64, error) {
	cancelled, err := repo.FailSameNonce(ctx, from, nonce, keepId, "nonce used by "+keepHash)
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		metrics.TransactionsFinalized.WithLabelValues(string(model.TransactionStatusFailed), "same_nonce").Add(float64(cancelled))
		logger.Info("Cancelled %d transactions of %s with nonce %d used by %s", cancelled, from, nonce, keepHash)
	}
	return cancelled, nil
}

// UpdateGasPrice 刷新缓存的 gas 价格
func (l *TransactionLogic) UpdateGasPrice(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, l.config.ReceiptTimeout)
	defer cancel()

	price, err := l.ledger.GetGasPrice(callCtx)
	if err != nil {
		metrics.LedgerErrors.WithLabelValues("gas_price", string(chain.Classify(err).Class)).Inc()
		return err
	}
	l.gasPrice.Store(price)
	logger.Debug("Gas price updated: %s", price)
	return nil
}

// GetTransaction 按哈希查询本地交易
func (l *TransactionLogic) GetTransaction(ctx context.Context, hash string) (*model.TransactionModel, error) {
	tx, err := l.txs.GetByHash(ctx, chain.NormalizeHash(hash))
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (l *TransactionLogic) currentGasPrice(ctx context.Context) (*big.Int, error) {
	if price := l.gasPrice.Load(); price != nil {
		return new(big.Int).Set(price), nil
	}
	if err := l.UpdateGasPrice(ctx); err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.gasPrice.Load()), nil
}

// nextNonce 取链上待处理 nonce 与本地已占用 nonce 的较大者
func (l *TransactionLogic) nextNonce(ctx context.Context, from string) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.config.ReceiptTimeout)
	ledgerNonce, err := l.ledger.PendingNonceAt(callCtx, from)
	cancel()
	if err != nil {
		metrics.LedgerErrors.WithLabelValues("nonce", string(chain.Classify(err).Class)).Inc()
		return 0, err
	}

	localMax, ok, err := l.txs.MaxNonce(ctx, from,
		model.TransactionStatusCreated, model.TransactionStatusPending, model.TransactionStatusReplaced, model.TransactionStatusSucceeded)
	if err != nil {
		return 0, err
	}

	next := ledgerNonce
	if ok && uint64(localMax)+1 > next {
		next = uint64(localMax) + 1
	}
	return next, nil
}

func (l *TransactionLogic) sign(ctx context.Context, record *model.TransactionModel, gasPrice *big.Int) (*types.Transaction, []byte, error) {
	gasLimit := l.chainCfg.NativeGasLimit
	if record.ContractAddress != "" {
		gasLimit = l.chainCfg.GasLimit
	}

	unsigned, err := chain.NewTransferTx(chain.TransferParams{
		Nonce:           uint64(record.Nonce),
		To:              record.ToAddress,
		ContractAddress: record.ContractAddress,
		Value:           record.Value.BigInt(),
		TokenAmount:     record.ContractAmount.BigInt(),
		GasPrice:        gasPrice,
		GasLimit:        gasLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	signed, err := l.signer.SignTx(ctx, record.FromAddress, unsigned, l.ledger.ChainID())
	if err != nil {
		return nil, nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return signed, raw, nil
}

func (l *TransactionLogic) send(ctx context.Context, raw []byte) error {
	callCtx, cancel := context.WithTimeout(ctx, l.config.SubmitTimeout)
	defer cancel()

	_, err := l.ledger.SendRawTransaction(callCtx, raw)
	if err != nil && !chain.IsAlreadyKnown(err) {
		metrics.LedgerErrors.WithLabelValues("send", string(chain.Classify(err).Class)).Inc()
	}
	return err
}

func (l *TransactionLogic) getReceipt(ctx context.Context, hash string) (*chain.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.config.ReceiptTimeout)
	defer cancel()

	receipt, err := l.ledger.GetReceipt(callCtx, hash)
	if err != nil && !errors.Is(err, chain.ErrNotFound) {
		metrics.LedgerErrors.WithLabelValues("receipt", string(chain.Classify(err).Class)).Inc()
	}
	return receipt, err
}

// failActive 将未终结的交易置为失败，返回是否由本次调用完成
func (l *TransactionLogic) failActive(ctx context.Context, tx *model.TransactionModel, reason string, metricReason string) bool {
	updated, err := l.txs.UpdateActive(ctx, tx.Id, map[string]interface{}{
		"status": model.TransactionStatusFailed,
		"error":  reason,
	})
	if err != nil {
		logger.Error("Failed to mark transaction %d as failed: %v", tx.Id, err)
		return false
	}
	if updated {
		tx.Status = model.TransactionStatusFailed
		tx.Error = reason
		metrics.TransactionsFinalized.WithLabelValues(string(model.TransactionStatusFailed), metricReason).Inc()
		logger.Warn("Transaction %d (%s) from %s nonce %d failed: %s", tx.Id, tx.GetHash(), tx.FromAddress, tx.Nonce, reason)
	}
	return updated
}

func receiptStatus(receipt *chain.Receipt) model.TransactionStatus {
	if receipt.Success {
		return model.TransactionStatusSucceeded
	}
	return model.TransactionStatusFailed
}

func receiptUpdates(receipt *chain.Receipt) map[string]interface{} {
	updates := map[string]interface{}{
		"status":          receiptStatus(receipt),
		"gas_used":        int64(receipt.GasUsed),
		"block_hash":      receipt.BlockHash,
		"block_number":    int64(receipt.BlockNumber),
		"block_timestamp": receipt.BlockTimestamp,
	}
	if receipt.GasPrice != nil {
		updates["gas_price"] = decimal.NewFromBigInt(receipt.GasPrice, 0)
	}
	if !receipt.Success {
		updates["error"] = "execution failed on ledger"
	}
	return updates
}

func bigToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
