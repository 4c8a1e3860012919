package notify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// ApprovalRequest carries what the approval email needs. The token is a
// signed claim for the order; the approval page resolves it.
type ApprovalRequest struct {
	To          string
	OrderNumber string
	ProjectName string
	OrderTotal  decimal.Decimal
	Token       string
}

func approvalBaseURL() string {
	base := strings.TrimSpace(os.Getenv("APPROVAL_BASE_URL"))
	if base == "" {
		base = "https://procurement.local/approvals"
	}
	return strings.TrimRight(base, "/")
}

// SendApprovalRequest mails the approver a signed link for the order.
func SendApprovalRequest(ctx context.Context, req ApprovalRequest) error {
	link := fmt.Sprintf("%s?token=%s", approvalBaseURL(), req.Token)
	subject := fmt.Sprintf("Purchase order %s awaits your approval", req.OrderNumber)
	body := fmt.Sprintf(
		"<p>Purchase order <b>%s</b> for project <b>%s</b> (total %s) is pending approval.</p>"+
			"<p><a href=%q>Review and approve</a></p>",
		req.OrderNumber, req.ProjectName, req.OrderTotal.StringFixed(2), link,
	)
	return GetMailer().Send(ctx, req.To, subject, body)
}
