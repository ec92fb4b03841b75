package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/models"
)

//go:embed templates/receipt.html
var receiptTemplateText string

var receiptTemplate = template.Must(template.New("receipt").Parse(receiptTemplateText))

const receiptFolder = "chainfundit_payout_receipts"

type PDFRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

type FileUploader interface {
	Upload(ctx context.Context, data []byte, publicID string) (string, error)
}

// ReceiptService renders a PDF receipt for a completed payout and uploads it.
type ReceiptService struct {
	renderer PDFRenderer
	uploader FileUploader
	logger   *zap.Logger
}

func NewReceiptService(renderer PDFRenderer, uploader FileUploader, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{renderer: renderer, uploader: uploader, logger: logger}
}

type receiptData struct {
	Reference   string
	Kind        string
	OwnerName   string
	AccountName string
	BankName    string
	Gross       string
	Fees        string
	Net         string
	Currency    string
	Transaction string
	PaidOn      string
}

func renderReceiptHTML(payout *models.Payout, ownerName string) (string, error) {
	data := receiptData{
		Reference:   payout.ID.String(),
		Kind:        string(payout.Kind),
		OwnerName:   ownerName,
		AccountName: payout.AccountName,
		BankName:    payout.BankName,
		Gross:       payout.GrossAmount.StringFixed(2),
		Fees:        payout.Fees.StringFixed(2),
		Net:         payout.NetAmount.StringFixed(2),
		Currency:    payout.Currency,
	}
	if payout.TransactionID != nil {
		data.Transaction = *payout.TransactionID
	}
	paidOn := time.Now()
	if payout.ProcessedAt != nil {
		paidOn = *payout.ProcessedAt
	}
	data.PaidOn = paidOn.Format("January 2, 2006")

	var rendered bytes.Buffer
	if err := receiptTemplate.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

// Generate returns the public URL of the receipt PDF.
func (s *ReceiptService) Generate(ctx context.Context, payout *models.Payout, ownerName string) (string, error) {
	if payout.Status != models.PayoutStatusCompleted {
		return "", fmt.Errorf("receipt for payout %s in status %s", payout.ID, payout.Status)
	}

	html, err := renderReceiptHTML(payout, ownerName)
	if err != nil {
		return "", fmt.Errorf("render receipt html: %w", err)
	}
	pdf, err := s.renderer.Render(ctx, html)
	if err != nil {
		return "", fmt.Errorf("render receipt pdf: %w", err)
	}
	url, err := s.uploader.Upload(ctx, pdf, fmt.Sprintf("%s_%s", payout.Kind, payout.ID))
	if err != nil {
		return "", fmt.Errorf("upload receipt: %w", err)
	}

	s.logger.Info("payout receipt generated", zap.String("payout_id", payout.ID.String()), zap.String("url", url))
	return url, nil
}

// ChromePDFRenderer prints HTML to PDF with a headless Chrome.
type ChromePDFRenderer struct{}

func (ChromePDFRenderer) Render(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryUploader(cloudinaryURL string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: cld}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte, publicID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		Folder:       receiptFolder,
		ResourceType: "raw",
	})
	if err != nil {
		return "", err
	}
	return result.SecureURL, nil
}
