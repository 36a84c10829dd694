package service

type Services struct {
	Mint      *MintService
	Ledger    *LedgerService
	Reconcile *ReconcileService
	Tokens    *ServiceTokenService
}
