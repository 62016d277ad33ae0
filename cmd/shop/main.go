package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"storefront/internal/config"
	"storefront/internal/modules/cart"
	"storefront/internal/modules/catalog"
	"storefront/internal/modules/notify"
	"storefront/internal/modules/orders"
	"storefront/internal/modules/pipeline"
	"storefront/internal/modules/session"
	"storefront/internal/modules/toast"
	"storefront/internal/pkg/idempotency"
	"storefront/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	store, err := storage.Open(cfg.StatePath)
	if err != nil {
		log.Fatal(err)
	}

	creds := session.NewCredentialStore(store)
	httpc := &http.Client{Timeout: cfg.HTTPTimeout}
	manager := session.NewManager(cfg.APIURL, httpc, creds)

	loading := pipeline.NewLoadingTracker()
	toasts := toast.NewService()
	httpc.Transport = pipeline.Chain(nil, manager, loading, toasts)

	api := pipeline.NewClient(httpc, cfg.APIURL)
	products := catalog.NewClient(api)
	orderAPI := orders.NewClient(api)
	basket := cart.NewService(store)
	channel := notify.NewChannel(cfg.HubURL, manager, store, toasts)

	manager.OnLogout(func() {
		basket.Clear()
		channel.Disconnect()
	})
	manager.SetNavigate(func() {
		fmt.Println("\n[signed out]")
	})

	// Toasts render as one line each; the notification channel follows the
	// session: connected while logged in, torn down on logout.
	toastCh, cancelToasts := toasts.Subscribe()
	defer cancelToasts()
	go func() {
		for t := range toastCh {
			fmt.Printf("[%s] %s\n", t.Kind, t.Message)
		}
	}()

	sessions, cancelSessions := manager.Subscribe()
	defer cancelSessions()
	go func() {
		for sess := range sessions {
			if sess == nil {
				continue
			}
			channel.History().LoadFor(sess.Identity.Subject)
			channel.Connect()
		}
	}()

	manager.Restore(context.Background())

	app := &cli{
		manager:  manager,
		products: products,
		orders:   orderAPI,
		basket:   basket,
		channel:  channel,
	}
	app.run()
}

type cli struct {
	manager  *session.Manager
	products *catalog.Client
	orders   *orders.Client
	basket   *cart.Service
	channel  *notify.Channel
}

func (a *cli) run() {
	fmt.Println("storefront client; type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		ctx := context.Background()
		switch fields[0] {
		case "help":
			printHelp()
		case "quit", "exit":
			return
		case "login":
			a.login(ctx, fields[1:])
		case "register":
			a.register(ctx, fields[1:])
		case "logout":
			a.manager.Logout()
		case "whoami":
			a.whoami()
		case "products":
			a.listProducts(ctx, fields[1:])
		case "product":
			a.showProduct(ctx, fields[1:])
		case "add":
			a.addToCart(ctx, fields[1:])
		case "cart":
			a.showCart()
		case "checkout":
			a.checkout(ctx, fields[1:])
		case "orders":
			a.listOrders(ctx)
		case "order":
			a.showOrder(ctx, fields[1:])
		case "watch":
			a.watch(fields[1:])
		case "unwatch":
			a.unwatch(fields[1:])
		case "notifications":
			a.showNotifications()
		case "status":
			fmt.Printf("channel: %s, unread: %d\n", a.channel.State(), a.channel.History().UnreadCount())
		default:
			fmt.Printf("unknown command %q; type 'help'\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  login <email> <password>
  register <email> <password> <first> <last>
  logout | whoami | status
  products [search term]
  product <id>
  add <product-id> [qty]
  cart
  checkout [discount-code]
  orders
  order <id>
  watch <product-id> | unwatch <product-id>
  notifications
  quit
`)
}

func (a *cli) login(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: login <email> <password>")
		return
	}
	sess, err := a.manager.Login(ctx, session.LoginRequest{Email: args[0], Password: args[1]})
	if err != nil {
		fmt.Println("login failed:", err)
		return
	}
	fmt.Printf("logged in as %s (%s)\n", sess.Identity.Email, sess.Identity.Role)
}

func (a *cli) register(ctx context.Context, args []string) {
	if len(args) != 4 {
		fmt.Println("usage: register <email> <password> <first> <last>")
		return
	}
	resp, err := a.manager.Register(ctx, session.RegisterRequest{
		Email:     args[0],
		Password:  args[1],
		FirstName: args[2],
		LastName:  args[3],
	}, idempotency.NewKey())
	if err != nil {
		fmt.Println("registration failed:", err)
		return
	}
	fmt.Println(resp.Message)
}

func (a *cli) whoami() {
	sess := a.manager.Current()
	if sess == nil {
		fmt.Println("not logged in")
		return
	}
	fmt.Printf("%s %s <%s> role=%s, token expires %s\n",
		sess.Identity.FirstName, sess.Identity.LastName, sess.Identity.Email,
		sess.Identity.Role, sess.ExpiresAt.Format("15:04:05"))
}

func (a *cli) listProducts(ctx context.Context, args []string) {
	page, err := a.products.List(ctx, catalog.QueryParams{
		PageNumber: 1,
		PageSize:   20,
		SearchTerm: strings.Join(args, " "),
	})
	if err != nil {
		fmt.Println("listing products:", err)
		return
	}
	for _, p := range page.Items {
		fmt.Printf("%s  %-30s $%8.2f  stock %d\n", p.ID, p.Name, p.Price, p.Stock)
	}
	fmt.Printf("page %d/%d, %d products\n", page.PageNumber, page.TotalPages, page.TotalItems)
}

func (a *cli) showProduct(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: product <id>")
		return
	}
	p, err := a.products.Get(ctx, args[0])
	if err != nil {
		fmt.Println("loading product:", err)
		return
	}
	fmt.Printf("%s\n%s\n$%.2f, %d in stock, category %s\n", p.Name, p.Description, p.Price, p.Stock, p.CategoryName)
}

func (a *cli) addToCart(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: add <product-id> [qty]")
		return
	}
	qty := 1
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			qty = n
		}
	}
	p, err := a.products.Get(ctx, args[0])
	if err != nil {
		fmt.Println("loading product:", err)
		return
	}
	a.basket.Add(*p, qty)
	fmt.Printf("added %d x %s; cart total $%.2f\n", qty, p.Name, a.basket.Total())
}

func (a *cli) showCart() {
	items := a.basket.Items()
	if len(items) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for _, item := range items {
		fmt.Printf("%d x %-30s $%8.2f\n", item.Quantity, item.Product.Name, item.Product.Price*float64(item.Quantity))
	}
	fmt.Printf("total: $%.2f\n", a.basket.Total())
}

func (a *cli) checkout(ctx context.Context, args []string) {
	items := a.basket.Items()
	if len(items) == 0 {
		fmt.Println("cart is empty")
		return
	}
	req := orders.CreateOrderRequest{}
	if len(args) > 0 {
		req.DiscountCode = args[0]
	}
	for _, item := range items {
		req.Items = append(req.Items, orders.OrderItem{ProductID: item.Product.ID, Quantity: item.Quantity})
	}

	detail, err := a.orders.Create(ctx, req, idempotency.NewKey())
	if err != nil {
		fmt.Println("checkout failed:", err)
		return
	}
	a.basket.Clear()
	fmt.Printf("order %s placed, total $%.2f\n", detail.OrderID, detail.TotalAmount)

	// Follow the new order's status pushes.
	if err := a.channel.SubscribeToOrder(detail.OrderID); err != nil {
		fmt.Println("order tracking unavailable:", err)
	}
}

func (a *cli) listOrders(ctx context.Context) {
	list, err := a.orders.Mine(ctx)
	if err != nil {
		fmt.Println("listing orders:", err)
		return
	}
	if len(list) == 0 {
		fmt.Println("no orders yet")
		return
	}
	for _, o := range list {
		fmt.Printf("%s  %s  $%8.2f  %s\n", o.ID, o.OrderDate.Format("2006-01-02 15:04"), o.TotalAmount, o.Status)
	}
}

func (a *cli) showOrder(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: order <id>")
		return
	}
	detail, err := a.orders.Get(ctx, args[0])
	if err != nil {
		fmt.Println("loading order:", err)
		return
	}
	fmt.Printf("order %s, %s\n", detail.OrderID, detail.Status)
	for _, line := range detail.Items {
		fmt.Printf("%d x %-30s $%8.2f\n", line.Quantity, line.ProductName, line.Subtotal)
	}
	if detail.DiscountAmount > 0 {
		fmt.Printf("discount (%s): -$%.2f\n", detail.DiscountCode, detail.DiscountAmount)
	}
	fmt.Printf("total: $%.2f\n", detail.TotalAmount)
}

func (a *cli) watch(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: watch <product-id>")
		return
	}
	if err := a.channel.SubscribeToProduct(args[0]); err != nil {
		fmt.Println("watch failed:", err)
		return
	}
	fmt.Println("watching product", args[0])
}

func (a *cli) unwatch(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unwatch <product-id>")
		return
	}
	if err := a.channel.UnsubscribeFromProduct(args[0]); err != nil {
		fmt.Println("unwatch failed:", err)
	}
}

func (a *cli) showNotifications() {
	entries := a.channel.History().Entries()
	if len(entries) == 0 {
		fmt.Println("no notifications")
		return
	}
	for _, ev := range entries {
		marker := " "
		if !ev.Read {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, ev.Timestamp.Format("15:04:05"), ev.Message)
	}
	a.channel.History().MarkAllAsRead()
}
