package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/notify"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.sent = append(m.sent, to)
	return nil
}

// Full order lifecycle against real MySQL + redis: create an order of 10 @ 5,
// approve it, send it, receive 6 of 10. The parent must end PartiallyReceived
// with a backorder of 4, the ledger must carry one row worth 30, stock must be
// 6 on hand, and the project must show 30 received / 20 still committed.
// Receiving the backorder then closes everything out and a repair run finds
// nothing to fix.
func TestPartialReceptionSpawnsBackorderAndMovesProjectValue(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "procurement_test")
	t.Setenv("ORDER_NUMBER_PREFIX", "PO")
	t.Setenv("APPROVAL_NOTIFICATIONS", "true")

	mailer := &recordingMailer{}
	notify.SetMailer(mailer)

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	// Status history rows record the acting user from context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Acme Steel", Email: "sales@acme.test"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	project, err := models.CreateProject(ctx, &models.NewProject{Name: "Site A"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	location, err := models.CreateInventoryLocation(ctx, &models.NewInventoryLocation{Name: "Main Warehouse"})
	if err != nil {
		t.Fatalf("CreateInventoryLocation: %v", err)
	}
	item, err := models.CreateItem(ctx, &models.NewItem{
		Sku:           "REBAR-12",
		Name:          "Rebar 12mm",
		ItemType:      models.ItemTypeMaterial,
		UnitOfMeasure: "pcs",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	orderDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:    supplier.ID,
		ProjectId:     project.ID,
		LocationId:    location.ID,
		OrderDate:     orderDate,
		ApproverEmail: "approver@test.local",
		Details: []models.NewPurchaseOrderDetail{
			{ItemId: item.ID, Qty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if po.CurrentStatus != models.PurchaseOrderStatusPendingApproval {
		t.Fatalf("new order status = %s", po.CurrentStatus)
	}
	if po.OrderTotal.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("order total = %s, want 50", po.OrderTotal.String())
	}
	wantNumber := fmt.Sprintf("PO-%d-0001", orderDate.Year())
	if po.OrderNumber != wantNumber {
		t.Fatalf("order number = %s, want %s", po.OrderNumber, wantNumber)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "approver@test.local" {
		t.Fatalf("approval mail not sent: %v", mailer.sent)
	}

	// Approve: order value becomes committed on the project.
	if _, err := models.UpdateStatusPurchaseOrder(ctx, po.ID, models.PurchaseOrderStatusApproved, "looks fine"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	project, err = models.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if project.MaterialsCommitted.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("committed after approval = %s, want 50", project.MaterialsCommitted.String())
	}

	if _, err := models.UpdateStatusPurchaseOrder(ctx, po.ID, models.PurchaseOrderStatusSentToSupplier, ""); err != nil {
		t.Fatalf("send to supplier: %v", err)
	}

	// Receive 6 of 10.
	parent, err := models.ConfirmReception(ctx, po.ID, &models.NewReception{
		ReceptionDate: orderDate.AddDate(0, 0, 7),
		Lines: []models.ReceptionLine{
			{ItemId: item.ID, ReceivedQty: decimal.NewFromInt(6)},
		},
	})
	if err != nil {
		t.Fatalf("ConfirmReception: %v", err)
	}
	if parent.CurrentStatus != models.PurchaseOrderStatusPartiallyReceived {
		t.Fatalf("parent status = %s, want PartiallyReceived", parent.CurrentStatus)
	}

	backorderIds, err := parent.BackorderIds(ctx)
	if err != nil {
		t.Fatalf("BackorderIds: %v", err)
	}
	if len(backorderIds) != 1 {
		t.Fatalf("expected 1 backorder, got %d", len(backorderIds))
	}
	backorder, err := models.GetPurchaseOrder(ctx, backorderIds[0])
	if err != nil {
		t.Fatalf("GetPurchaseOrder(backorder): %v", err)
	}
	if backorder.CurrentStatus != models.PurchaseOrderStatusSentToSupplier {
		t.Fatalf("backorder status = %s, want SentToSupplier", backorder.CurrentStatus)
	}
	if backorder.OriginalOrderId == nil || *backorder.OriginalOrderId != po.ID {
		t.Fatalf("backorder original order id = %v, want %d", backorder.OriginalOrderId, po.ID)
	}
	if len(backorder.Details) != 1 || backorder.Details[0].Qty.Cmp(decimal.NewFromInt(4)) != 0 {
		t.Fatalf("backorder line = %+v, want qty 4", backorder.Details)
	}
	if backorder.OrderTotal.Cmp(decimal.NewFromInt(20)) != 0 {
		t.Fatalf("backorder total = %s, want 20", backorder.OrderTotal.String())
	}

	ledger, err := models.GetLedgerEntriesByOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetLedgerEntriesByOrder: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(ledger))
	}
	if ledger[0].Qty.Cmp(decimal.NewFromInt(6)) != 0 || ledger[0].TotalCost.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("ledger row qty=%s total=%s, want 6/30", ledger[0].Qty.String(), ledger[0].TotalCost.String())
	}
	if ledger[0].EntryType != models.LedgerEntryTypeReception {
		t.Fatalf("ledger entry type = %s", ledger[0].EntryType)
	}

	stock, err := models.GetLocationStock(ctx, item.ID, location.ID)
	if err != nil {
		t.Fatalf("GetLocationStock: %v", err)
	}
	if stock.Qty.Cmp(decimal.NewFromInt(6)) != 0 {
		t.Fatalf("stock on hand = %s, want 6", stock.Qty.String())
	}

	project, err = models.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if project.MaterialsReceived.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("received after partial = %s, want 30", project.MaterialsReceived.String())
	}
	if project.MaterialsCommitted.Cmp(decimal.NewFromInt(20)) != 0 {
		t.Fatalf("committed after partial = %s, want 20", project.MaterialsCommitted.String())
	}

	// Re-receiving the parent is rejected: reception statuses are terminal.
	if _, err := models.ConfirmReception(ctx, po.ID, &models.NewReception{
		Lines: []models.ReceptionLine{{ItemId: item.ID, ReceivedQty: decimal.NewFromInt(4)}},
	}); err == nil {
		t.Fatal("expected error receiving an already-received order")
	}

	// Receive the backorder in full.
	closed, err := models.ConfirmReception(ctx, backorder.ID, &models.NewReception{
		Lines: []models.ReceptionLine{{ItemId: item.ID, ReceivedQty: decimal.NewFromInt(4)}},
	})
	if err != nil {
		t.Fatalf("ConfirmReception(backorder): %v", err)
	}
	if closed.CurrentStatus != models.PurchaseOrderStatusReceived {
		t.Fatalf("backorder status = %s, want Received", closed.CurrentStatus)
	}

	stock, err = models.GetLocationStock(ctx, item.ID, location.ID)
	if err != nil {
		t.Fatalf("GetLocationStock: %v", err)
	}
	if stock.Qty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("stock on hand = %s, want 10", stock.Qty.String())
	}

	project, err = models.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if project.MaterialsReceived.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("received after close = %s, want 50", project.MaterialsReceived.String())
	}
	if !project.MaterialsCommitted.IsZero() {
		t.Fatalf("committed after close = %s, want 0", project.MaterialsCommitted.String())
	}

	// A repair run over consistent data changes nothing and flags nothing.
	summary, err := workflow.RunLedgerRepair(ctx, config.GetDB(), config.GetLogger())
	if err != nil {
		t.Fatalf("RunLedgerRepair: %v", err)
	}
	if summary.ProjectRefsResolved != 0 || summary.CostsBackfilled != 0 || summary.LedgerRowsBackfilled != 0 {
		t.Fatalf("repair touched consistent data: %+v", summary)
	}
	if summary.DiscrepanciesFlagged != 0 {
		t.Fatalf("repair flagged %d discrepancies on consistent data", summary.DiscrepanciesFlagged)
	}

	// Lookups over the settled data.
	byNumber, err := models.GetPurchaseOrderByNumber(ctx, wantNumber)
	if err != nil || byNumber.ID != po.ID {
		t.Fatalf("GetPurchaseOrderByNumber(%s) = %v, %v", wantNumber, byNumber, err)
	}
	entries, err := models.GetLedgerEntriesByProject(ctx, project.ID, nil, nil)
	if err != nil {
		t.Fatalf("GetLedgerEntriesByProject: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries for the project, got %d", len(entries))
	}
	stocks, err := models.GetLocationStocks(ctx, location.ID)
	if err != nil || len(stocks) != 1 || stocks[0].Qty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("GetLocationStocks = %+v, %v", stocks, err)
	}
	supplier, err = models.UpdateSupplier(ctx, supplier.ID, &models.NewSupplier{Name: "Acme Steel Ltd", Email: "sales@acme.test"})
	if err != nil || supplier.Name != "Acme Steel Ltd" {
		t.Fatalf("UpdateSupplier = %v, %v", supplier, err)
	}

	// Stock can never be driven below zero.
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.AdjustLocationStock(tx, item.ID, location.ID, decimal.NewFromInt(-11))
	})
	if err == nil || !utils.IsValidationError(err) {
		t.Fatalf("expected validation error driving stock negative, got %v", err)
	}
	stock, err = models.GetLocationStock(ctx, item.ID, location.ID)
	if err != nil || stock.Qty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("stock changed by a rejected adjustment: %v, %v", stock, err)
	}

	// Corrupt one ledger row: orders and ledger now disagree, and the drift
	// check must flag it from those two derivations alone.
	if err := config.GetDB().WithContext(ctx).Model(&models.InventoryHistory{}).
		Where("purchase_order_id = ?", po.ID).
		Update("total_cost", decimal.NewFromInt(300)).Error; err != nil {
		t.Fatalf("corrupting ledger row: %v", err)
	}
	driftRun := "drift-check-1"
	flagged, err := workflow.RunDiscrepancyChecks(ctx, config.GetDB(), config.GetLogger(), driftRun)
	if err != nil {
		t.Fatalf("RunDiscrepancyChecks: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged project, got %d", flagged)
	}
	reports, err := models.GetReconciliationReports(ctx, &driftRun, nil)
	if err != nil {
		t.Fatalf("GetReconciliationReports: %v", err)
	}
	if len(reports) != 1 || reports[0].CheckType != "PROJECT_DISCREPANCY" || reports[0].EntityId != project.ID {
		t.Fatalf("unexpected drift reports: %+v", reports)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("procurement-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("procurement-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=procurement_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
