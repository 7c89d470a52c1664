package payment

import "context"

// 決済インテント。client_secretはフロントのStripe.jsに渡す値。
type Intent struct {
	ID           string
	ClientSecret string
	Succeeded    bool
}

// 外部決済（Stripe）との契約。作成と再取得だけを使う。
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
}
