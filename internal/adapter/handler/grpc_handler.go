package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/core/service"
)

const (
	adminServiceName = "biosalim.v1.AdminService"
	jsonCodecName    = "json"

	mdAdminEmail    = "x-admin-email"
	mdAdminPassword = "x-admin-password"
)

// jsonCodec lets the admin service exchange plain Go structs; clients select
// it with grpc.CallContentSubtype("json").
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	Orders []OrderDTO `json:"orders"`
}

type UpdateOrderStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type UpdateOrderStatusResponse struct {
	Order OrderDTO `json:"order"`
}

type ListProductsRequest struct {
	Category string `json:"category,omitempty"`
}

type ListProductsResponse struct {
	Products []ProductDTO `json:"products"`
}

type AdminServiceServer interface {
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
}

func unaryMethod[Req, Resp any](name string, call func(AdminServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + adminServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServiceServer), ctx, req.(*Req))
			})
		},
	}
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListOrders", AdminServiceServer.ListOrders),
		unaryMethod("UpdateOrderStatus", AdminServiceServer.UpdateOrderStatus),
		unaryMethod("ListProducts", AdminServiceServer.ListProducts),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "biosalim/v1/admin",
}

func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

// AdminServiceClient calls the admin service with the JSON codec.
type AdminServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminServiceClient(cc grpc.ClientConnInterface) *AdminServiceClient {
	return &AdminServiceClient{cc: cc}
}

func (c *AdminServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+adminServiceName+"/"+method, in, out, opts...)
}

func (c *AdminServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.invoke(ctx, "ListOrders", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error) {
	out := new(UpdateOrderStatusResponse)
	if err := c.invoke(ctx, "UpdateOrderStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminServiceClient) ListProducts(ctx context.Context, in *ListProductsRequest, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	out := new(ListProductsResponse)
	if err := c.invoke(ctx, "ListProducts", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// WithAdminCredentials attaches back-office credentials to an outgoing call.
func WithAdminCredentials(ctx context.Context, email, password string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, mdAdminEmail, email, mdAdminPassword, password)
}

type GRPCHandler struct {
	catalog *service.CatalogService
	orders  *service.OrderService
	metrics Recorder
}

func NewGRPCHandler(catalog *service.CatalogService, orders *service.OrderService, metrics Recorder) *GRPCHandler {
	return &GRPCHandler{catalog: catalog, orders: orders, metrics: metrics}
}

func (h *GRPCHandler) ListOrders(ctx context.Context, _ *ListOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := h.orders.List(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ListOrdersResponse{Orders: toOrderDTOs(orders)}, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	st, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, grpcError(err)
	}

	order, err := h.orders.UpdateStatus(ctx, req.ID, st)
	if err != nil {
		return nil, grpcError(err)
	}
	if h.metrics != nil {
		h.metrics.StatusChanged(string(order.Status))
	}
	return &UpdateOrderStatusResponse{Order: toOrderDTO(order)}, nil
}

func (h *GRPCHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	products, err := h.catalog.List(ctx, domain.Category(req.Category))
	if err != nil {
		return nil, grpcError(err)
	}
	return &ListProductsResponse{Products: toProductDTOs(products)}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrEmptyCart):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, service.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, domain.ErrPersistence):
		return status.Error(codes.Unavailable, "storage temporarily unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// AdminAuthInterceptor checks the admin credentials carried in metadata on
// every admin service call.
func AdminAuthInterceptor(gate *service.AdminGate) grpc.UnaryServerInterceptor {
	prefix := "/" + adminServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return next(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		if err := gate.Authenticate(first(md, mdAdminEmail), first(md, mdAdminPassword)); err != nil {
			return nil, grpcError(err)
		}
		return next(ctx, req)
	}
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Info("grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}

// NewGRPCServer builds a server exposing the admin service behind the
// logging and auth interceptors.
func NewGRPCServer(h *GRPCHandler, gate *service.AdminGate, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		AdminAuthInterceptor(gate),
	))
	RegisterAdminServiceServer(s, h)
	return s
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
